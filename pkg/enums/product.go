package enums

import "fmt"

// ProductCategory maps to the catalog's category column.
type ProductCategory string

const (
	CategorySupplements ProductCategory = "Supplements"
	CategoryMealPrep    ProductCategory = "Meal Prep"
	CategoryFitness     ProductCategory = "Fitness"
	CategoryWellness    ProductCategory = "Wellness"
)

var validProductCategories = []ProductCategory{
	CategorySupplements,
	CategoryMealPrep,
	CategoryFitness,
	CategoryWellness,
}

func (c ProductCategory) String() string {
	return string(c)
}

// IsValid reports whether the value is a known ProductCategory.
func (c ProductCategory) IsValid() bool {
	for _, candidate := range validProductCategories {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseProductCategory converts raw input into a ProductCategory.
func ParseProductCategory(value string) (ProductCategory, error) {
	for _, candidate := range validProductCategories {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid product category %q", value)
}

// LifecycleStage is the optional program-stage tag a product targets.
type LifecycleStage string

const (
	StageStarting    LifecycleStage = "starting"
	StageActive      LifecycleStage = "active"
	StageMaintenance LifecycleStage = "maintenance"
)

var validLifecycleStages = []LifecycleStage{
	StageStarting,
	StageActive,
	StageMaintenance,
}

func (s LifecycleStage) String() string {
	return string(s)
}

// IsValid reports whether the value is a known LifecycleStage.
func (s LifecycleStage) IsValid() bool {
	for _, candidate := range validLifecycleStages {
		if candidate == s {
			return true
		}
	}
	return false
}
