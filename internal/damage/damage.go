// Package damage defines the region and damage class vocabulary shared by
// every pipeline stage.
package damage

import (
	"strings"

	"github.com/roofsense/roofsense-go/internal/errors"
)

// Region identifies the source area of an image store.
type Region string

const (
	Dominica   Region = "Dominica"
	SintMaarten Region = "SintMaarten"
	TheBahamas Region = "TheBahamas"
	USVI       Region = "USVI"
	TestRegion Region = "Test"
)

// Regions lists all valid regions.
func Regions() []Region {
	return []Region{Dominica, SintMaarten, TheBahamas, USVI, TestRegion}
}

// ParseRegion resolves a case-insensitive region name.
func ParseRegion(s string) (Region, error) {
	for _, r := range Regions() {
		if strings.EqualFold(string(r), s) {
			return r, nil
		}
	}
	return "", errors.Newf("unknown region %q", s).
		Component("damage").
		Category(errors.CategoryValidation).
		Context("valid_regions", Regions()).
		Build()
}

// Class is a roof damage class.
type Class string

const (
	Decking Class = "Decking"
	Hole    Class = "Hole"
)

// Classes lists all damage classes in evaluation order.
func Classes() []Class {
	return []Class{Decking, Hole}
}

// ParseClass resolves a case-insensitive damage class name.
func ParseClass(s string) (Class, error) {
	for _, c := range Classes() {
		if strings.EqualFold(string(c), s) {
			return c, nil
		}
	}
	return "", errors.Newf("unknown damage class %q", s).
		Component("damage").
		Category(errors.CategoryValidation).
		Build()
}

// ClassConfig selects which damage classes a model is trained on.
type ClassConfig string

const (
	DualClass       ClassConfig = "dual"
	RoofDeckingOnly ClassConfig = "decking"
	RoofHoleOnly    ClassConfig = "hole"
)

// ParseClassConfig resolves a case-insensitive class configuration name.
func ParseClassConfig(s string) (ClassConfig, error) {
	switch strings.ToLower(s) {
	case string(DualClass):
		return DualClass, nil
	case string(RoofDeckingOnly):
		return RoofDeckingOnly, nil
	case string(RoofHoleOnly):
		return RoofHoleOnly, nil
	}
	return "", errors.Newf("unknown class configuration %q", s).
		Component("damage").
		Category(errors.CategoryValidation).
		Context("valid_configs", []ClassConfig{DualClass, RoofDeckingOnly, RoofHoleOnly}).
		Build()
}

// Classes returns the damage classes covered by the configuration.
func (c ClassConfig) Classes() []Class {
	switch c {
	case DualClass:
		return []Class{Decking, Hole}
	case RoofDeckingOnly:
		return []Class{Decking}
	case RoofHoleOnly:
		return []Class{Hole}
	}
	return nil
}

// ClassNames returns the class names as plain strings, in training order.
func (c ClassConfig) ClassNames() []string {
	classes := c.Classes()
	names := make([]string, len(classes))
	for i, cl := range classes {
		names[i] = string(cl)
	}
	return names
}
