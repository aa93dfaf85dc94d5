package cktools

// VGG Image Annotator (VIA) export, for looking at a dataset in the VIA web tool.

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
)

// VIAShape describes the shape of an annotation.
type VIAShape struct {
	Name   string  `json:"name"`
	X      int32   `json:"x,omitempty"`
	Y      int32   `json:"y,omitempty"`
	Width  int32   `json:"width,omitempty"`
	Height int32   `json:"height,omitempty"`
	AllX   []int32 `json:"all_points_x,omitempty"` // Polygon vertices.
	AllY   []int32 `json:"all_points_y,omitempty"`
}

// VIARegionAnnotation is a single region annotation for a particular image in a VIA file.
type VIARegionAnnotation struct {
	Attributes map[string]string `json:"region_attributes"`
	Shape      VIAShape          `json:"shape_attributes"`
}

// VIAAnnotatedFile defines the VIA annotation structure for a single file.
type VIAAnnotatedFile struct {
	Annotations []VIARegionAnnotation `json:"regions"`
	Attributes  map[string]string     `json:"file_attributes"`
	FilePath    string                `json:"filename"`
	Size        int64                 `json:"size"`
}

// VIAOptionsAttribute defines attributes of type "radio" or "dropdown".
type VIAOptionsAttribute struct {
	Type           string            `json:"type"` // "radio" or "dropdown"
	Description    string            `json:"description"`
	Options        map[string]string `json:"options"`
	DefaultOptions map[string]bool   `json:"default_options"`
}

// VIAAttributes defines the VIA attribute metadata.
type VIAAttributes struct {
	Region map[string]interface{} `json:"region"`
	File   map[string]interface{} `json:"file"`
}

// VIAProject defines the VIA project structure.
type VIAProject struct {
	Attributes    VIAAttributes               `json:"_via_attributes"`
	ImageMetadata map[string]VIAAnnotatedFile `json:"_via_img_metadata"`
	// Must exist for VIA to load the project. Default values will be used.
	Settings struct{} `json:"_via_settings"`
}

const (
	viaLabelAttribute    = "Label"    // The attribute key used for category names.
	viaCategoryAttribute = "Category" // The attribute key used for category ids.
)

// ToVIA converts the dataset to a VIA project. Every annotation becomes a rectangle region from
// its bounding box, plus one polygon region per segmentation polygon. Images are keyed by file
// name, so VIA resolves them relative to its configured image path.
func ToVIA(ds *Dataset) VIAProject {
	label := VIAOptionsAttribute{
		Type:           "radio",
		Options:        make(map[string]string, len(ds.Categories)),
		DefaultOptions: make(map[string]bool),
	}
	for _, c := range ds.Categories {
		label.Options[c.Name] = ""
	}

	viaData := VIAProject{
		Attributes: VIAAttributes{
			Region: map[string]interface{}{viaLabelAttribute: label},
			File:   make(map[string]interface{}),
		},
		ImageMetadata: make(map[string]VIAAnnotatedFile, len(ds.Images)),
	}

	names := ds.categoryNames()
	byImage := ds.annotationsByImage()
	for _, img := range ds.Images {
		viaFile := VIAAnnotatedFile{
			Annotations: make([]VIARegionAnnotation, 0, len(byImage[img.ID])),
			Attributes:  make(map[string]string, 0), // Must not be nil as that becomes JSON null.
			FilePath:    filepath.Base(img.FileName),
			Size:        -1,
		}
		for _, idx := range byImage[img.ID] {
			a := &ds.Annotations[idx]
			attrs := func() map[string]string {
				return map[string]string{
					viaLabelAttribute:    names[a.CategoryID],
					viaCategoryAttribute: strconv.FormatInt(a.CategoryID, 10),
				}
			}

			if len(a.BBox) == 4 {
				viaFile.Annotations = append(viaFile.Annotations, VIARegionAnnotation{
					Attributes: attrs(),
					Shape: VIAShape{
						Name:   "rect",
						X:      int32(a.BBox[0]),
						Y:      int32(a.BBox[1]),
						Width:  int32(a.BBox[2]),
						Height: int32(a.BBox[3]),
					},
				})
			}

			// RLE segmentations have no polygon form and are left out.
			polygons, _ := a.Polygons()
			for _, polygon := range polygons {
				shape := VIAShape{Name: "polygon"}
				for i := 0; i+1 < len(polygon); i += 2 {
					shape.AllX = append(shape.AllX, int32(polygon[i]))
					shape.AllY = append(shape.AllY, int32(polygon[i+1]))
				}
				viaFile.Annotations = append(viaFile.Annotations,
					VIARegionAnnotation{Attributes: attrs(), Shape: shape})
			}
		}
		// VIA keys files by name and size; the size is unknown here.
		viaData.ImageMetadata[viaFile.FilePath+"-1"] = viaFile
	}

	return viaData
}

// WriteVIA writes the VIA project data to outFile.
func WriteVIA(outFile string, data VIAProject) error {
	enc, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	if err := writeFile(outFile, enc); err != nil {
		return fmt.Errorf("cannot write VIA project: %w", err)
	}
	return nil
}
