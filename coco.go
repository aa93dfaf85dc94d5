package cktools

// COCO specific data structures.

import (
	"encoding/json"
	"fmt"
)

// Image is a single entry of the COCO "images" array.
type Image struct {
	ID       int64
	FileName string
	Width    int
	Height   int
	Extra    map[string]json.RawMessage // Fields without a typed counterpart, kept as is.
}

// Annotation is a single entry of the COCO "annotations" array.
type Annotation struct {
	ID           int64
	ImageID      int64
	CategoryID   int64
	Segmentation json.RawMessage // Polygon list or RLE object.
	BBox         []float64       // x, y, width, height.
	Area         float64
	IsCrowd      int
	Extra        map[string]json.RawMessage
}

// Category is a single entry of the COCO "categories" array.
type Category struct {
	ID            int64
	Name          string
	Supercategory string
	Extra         map[string]json.RawMessage
}

// Dataset is a COCO annotation set.
type Dataset struct {
	Images      []Image
	Annotations []Annotation
	Categories  []Category
	Extra       map[string]json.RawMessage // E.g. "info" and "licenses".
}

// fieldSet holds the raw fields of a JSON object that have not been consumed yet.
type fieldSet map[string]json.RawMessage

func decodeFields(data []byte) (fieldSet, error) {
	var f fieldSet
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return f, nil
}

// take decodes the field key into v and removes it from the set. Missing keys and JSON null
// leave v untouched.
func (f fieldSet) take(key string, v interface{}) error {
	raw, ok := f[key]
	if !ok {
		return nil
	}
	delete(f, key)
	if string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid field %q: %w", key, err)
	}
	return nil
}

// takeAll is take for several fields, stopping at the first error.
func (f fieldSet) takeAll(fields map[string]interface{}) error {
	for k, v := range fields {
		if err := f.take(k, v); err != nil {
			return err
		}
	}
	return nil
}

// rest returns the remaining fields, or nil if there are none.
func (f fieldSet) rest() map[string]json.RawMessage {
	if len(f) == 0 {
		return nil
	}
	return f
}

// marshalFields encodes the union of the extra and known fields. Known fields win.
func marshalFields(extra map[string]json.RawMessage, known map[string]interface{}) ([]byte, error) {
	out := make(map[string]interface{}, len(extra)+len(known))
	for k, v := range extra {
		out[k] = v
	}
	for k, v := range known {
		out[k] = v
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (img *Image) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	*img = Image{}
	err = f.takeAll(map[string]interface{}{
		"id":        &img.ID,
		"file_name": &img.FileName,
		"width":     &img.Width,
		"height":    &img.Height,
	})
	if err != nil {
		return fmt.Errorf("image: %w", err)
	}
	img.Extra = f.rest()
	return nil
}

// MarshalJSON implements json.Marshaler.
func (img Image) MarshalJSON() ([]byte, error) {
	known := map[string]interface{}{
		"id":        img.ID,
		"file_name": img.FileName,
	}
	if img.Width != 0 || img.Height != 0 {
		known["width"] = img.Width
		known["height"] = img.Height
	}
	return marshalFields(img.Extra, known)
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Annotation) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	*a = Annotation{}
	if seg, ok := f["segmentation"]; ok {
		a.Segmentation = seg
		delete(f, "segmentation")
	}
	var crowd crowdFlag
	err = f.takeAll(map[string]interface{}{
		"id":          &a.ID,
		"image_id":    &a.ImageID,
		"category_id": &a.CategoryID,
		"bbox":        &a.BBox,
		"area":        &a.Area,
		"iscrowd":     &crowd,
	})
	if err != nil {
		return fmt.Errorf("annotation: %w", err)
	}
	a.IsCrowd = int(crowd)
	a.Extra = f.rest()
	return nil
}

// crowdFlag decodes iscrowd given as a boolean or a number. Any non-zero value is 1.
type crowdFlag int

func (c *crowdFlag) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*c = 0
		if b {
			*c = 1
		}
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("iscrowd must be a boolean or a number: %w", err)
	}
	*c = 0
	if n != 0 {
		*c = 1
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (a Annotation) MarshalJSON() ([]byte, error) {
	known := map[string]interface{}{
		"id":          a.ID,
		"image_id":    a.ImageID,
		"category_id": a.CategoryID,
		"iscrowd":     a.IsCrowd,
	}
	if len(a.Segmentation) > 0 {
		known["segmentation"] = a.Segmentation
	}
	if a.BBox != nil {
		known["bbox"] = a.BBox
	}
	if a.Area != 0 {
		known["area"] = a.Area
	}
	return marshalFields(a.Extra, known)
}

// Polygons decodes a polygon segmentation, a list of flat x1,y1,x2,y2,... coordinate lists.
// RLE segmentations are not supported.
func (a *Annotation) Polygons() ([][]float64, error) {
	if len(a.Segmentation) == 0 {
		return nil, nil
	}
	var polygons [][]float64
	if err := json.Unmarshal(a.Segmentation, &polygons); err != nil {
		return nil, fmt.Errorf("annotation %d has no polygon segmentation: %w", a.ID, err)
	}
	return polygons, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Category) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	*c = Category{}
	err = f.takeAll(map[string]interface{}{
		"id":            &c.ID,
		"name":          &c.Name,
		"supercategory": &c.Supercategory,
	})
	if err != nil {
		return fmt.Errorf("category: %w", err)
	}
	c.Extra = f.rest()
	return nil
}

// MarshalJSON implements json.Marshaler.
func (c Category) MarshalJSON() ([]byte, error) {
	known := map[string]interface{}{
		"id":   c.ID,
		"name": c.Name,
	}
	if c.Supercategory != "" {
		known["supercategory"] = c.Supercategory
	}
	return marshalFields(c.Extra, known)
}

// UnmarshalJSON implements json.Unmarshaler.
func (ds *Dataset) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	*ds = Dataset{}
	err = f.takeAll(map[string]interface{}{
		"images":      &ds.Images,
		"annotations": &ds.Annotations,
		"categories":  &ds.Categories,
	})
	if err != nil {
		return err
	}
	ds.Extra = f.rest()
	return nil
}

// MarshalJSON implements json.Marshaler. The three arrays are always present, even if empty.
func (ds Dataset) MarshalJSON() ([]byte, error) {
	known := map[string]interface{}{
		"images":      nonNil(ds.Images),
		"annotations": nonNil(ds.Annotations),
		"categories":  nonNil(ds.Categories),
	}
	return marshalFields(ds.Extra, known)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// categoryNames maps category ids to names.
func (ds *Dataset) categoryNames() map[int64]string {
	names := make(map[int64]string, len(ds.Categories))
	for _, c := range ds.Categories {
		names[c.ID] = c.Name
	}
	return names
}

// annotationsByImage groups the annotation indices by image id, in annotation order.
func (ds *Dataset) annotationsByImage() map[int64][]int {
	m := make(map[int64][]int, len(ds.Images))
	for i, a := range ds.Annotations {
		m[a.ImageID] = append(m[a.ImageID], i)
	}
	return m
}
