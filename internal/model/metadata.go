package model

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

var ErrNoLabels = errors.New("metadata has no labels")

// Metadata is the subset of metadata.json the classifiers need.
type Metadata struct {
	ModelName string
	Labels    []string
	ImageSize int // image models only
}

// ParseMetadata reads the class labels from a model's metadata.json. Image
// models list them under "labels", sound models under "wordLabels".
func ParseMetadata(data []byte) (Metadata, error) {
	if !gjson.ValidBytes(data) {
		return Metadata{}, fmt.Errorf("parse metadata: invalid json")
	}

	labels := gjson.GetBytes(data, "labels")
	if !labels.Exists() {
		labels = gjson.GetBytes(data, "wordLabels")
	}

	md := Metadata{
		ModelName: gjson.GetBytes(data, "modelName").String(),
		ImageSize: int(gjson.GetBytes(data, "imageSize").Int()),
	}
	labels.ForEach(func(_, v gjson.Result) bool {
		md.Labels = append(md.Labels, v.String())
		return true
	})

	if len(md.Labels) == 0 {
		return Metadata{}, ErrNoLabels
	}
	return md, nil
}
