package repository

import "docverify/internal/model"

// CloneDocument returns a deep copy of d in the shape every store reads back:
// Reasons is never nil and no slice or pointer is shared with d.
func CloneDocument(d model.Document) model.Document {
	d.Analysis.Reasons = append([]string{}, d.Analysis.Reasons...)
	f := &d.Analysis.Features
	f.Sharpness = cloneValue(f.Sharpness)
	f.Contrast = cloneValue(f.Contrast)
	f.Brightness = cloneValue(f.Brightness)
	f.EdgeDensity = cloneValue(f.EdgeDensity)
	d.Analysis.TextLength = cloneValue(d.Analysis.TextLength)
	return d
}

func cloneValue[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
