package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/ashita-ai/hada/internal/model"
)

var dimensionalColumns = []string{"ingredient", "concern", "safe", "reason"}

type dimensionalCodec struct{}

func (dimensionalCodec) shape() Shape { return HoldsAssessments }

func (dimensionalCodec) encode(w io.Writer, snap *Snapshot) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(dimensionalColumns); err != nil {
		return err
	}
	for _, key := range snap.Keys() {
		e := snap.entries[key]
		concerns := make([]string, 0, len(e.Assessments))
		for c := range e.Assessments {
			concerns = append(concerns, string(c))
		}
		sort.Strings(concerns)
		for _, c := range concerns {
			a := e.Assessments[model.Concern(c)]
			if err := cw.Write([]string{key, c, a.Safe, a.Reason}); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func (dimensionalCodec) decode(r io.Reader) (*Snapshot, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 0 // every row must match the header width

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, col := range dimensionalColumns {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	snap := NewSnapshot()
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		ingredient := row[idx["ingredient"]]
		concern := strings.TrimSpace(row[idx["concern"]])
		if strings.TrimSpace(ingredient) == "" || concern == "" {
			return nil, fmt.Errorf("line %d: empty ingredient or concern", line)
		}
		snap.SetAssessment(ingredient, model.Concern(concern), model.ConcernAssessment{
			Safe:   row[idx["safe"]],
			Reason: row[idx["reason"]],
		})
	}
	return snap, nil
}
