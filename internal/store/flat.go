package store

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ashita-ai/hada/internal/model"
)

// flatRow is one element of the flat JSON artifact: exactly the durable
// IngredientRecord fields, without per-request notes.
type flatRow struct {
	Chemical                 string      `json:"Chemical"`
	Description              string      `json:"Description"`
	Source                   string      `json:"Source"`
	HumanHealth              string      `json:"HumanHealth"`
	EnvironmentalImpact      string      `json:"EnvironmentalImpact"`
	PregnancySafe            string      `json:"PregnancySafe"`
	Fragrance                string      `json:"Fragrance"`
	Acneogenic               model.Score `json:"Acneogenic"`
	SensitivityRisk          string      `json:"Sensitivity_Risk"`
	HyperpigmentationBenefit string      `json:"Hyperpigmentation_Benefit"`
	AntiAgingBenefit         string      `json:"Anti_Aging_Benefit"`
}

func rowFromRecord(r model.IngredientRecord) flatRow {
	return flatRow{
		Chemical:                 r.Chemical,
		Description:              r.Description,
		Source:                   r.Source,
		HumanHealth:              r.HumanHealth,
		EnvironmentalImpact:      r.EnvironmentalImpact,
		PregnancySafe:            r.PregnancySafe,
		Fragrance:                r.Fragrance,
		Acneogenic:               r.Acneogenic,
		SensitivityRisk:          r.SensitivityRisk,
		HyperpigmentationBenefit: r.HyperpigmentationBenefit,
		AntiAgingBenefit:         r.AntiAgingBenefit,
	}
}

func (f flatRow) record() model.IngredientRecord {
	return model.IngredientRecord{
		Chemical:                 f.Chemical,
		Description:              f.Description,
		Source:                   f.Source,
		HumanHealth:              f.HumanHealth,
		EnvironmentalImpact:      f.EnvironmentalImpact,
		PregnancySafe:            f.PregnancySafe,
		Fragrance:                f.Fragrance,
		Acneogenic:               f.Acneogenic,
		SensitivityRisk:          f.SensitivityRisk,
		HyperpigmentationBenefit: f.HyperpigmentationBenefit,
		AntiAgingBenefit:         f.AntiAgingBenefit,
	}
}

type flatCodec struct{}

func (flatCodec) shape() Shape { return HoldsRecords }

func (flatCodec) encode(w io.Writer, snap *Snapshot) error {
	rows := make([]flatRow, 0, snap.Len())
	for _, key := range snap.Keys() {
		e := snap.entries[key]
		if e.Record == nil {
			continue
		}
		rows = append(rows, rowFromRecord(*e.Record))
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

func (flatCodec) decode(r io.Reader) (*Snapshot, error) {
	var rows []flatRow
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	snap := NewSnapshot()
	for i, row := range rows {
		if strings.TrimSpace(row.Chemical) == "" {
			return nil, fmt.Errorf("record %d: missing Chemical", i)
		}
		// Duplicate spellings coalesce; the first occurrence wins.
		snap.SetRecord(row.Chemical, row.record())
	}
	return snap, nil
}
