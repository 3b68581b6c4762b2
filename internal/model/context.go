package model

import (
	"fmt"
	"strings"

	apperrors "github.com/koltyakov/pgindexhealth/internal/errors"
)

// Schema context defaults.
const (
	DefaultSchemaName                   = "public"
	DefaultBloatPercentageThreshold     = 10.0
	DefaultRemainingPercentageThreshold = 10.0
)

// SchemaContext is the parameter bag a diagnostic runs under.
type SchemaContext struct {
	SchemaName                   string  `json:"schema" yaml:"schema"`
	BloatPercentageThreshold     float64 `json:"bloat_percentage_threshold" yaml:"bloat_percentage_threshold"`
	RemainingPercentageThreshold float64 `json:"remaining_percentage_threshold" yaml:"remaining_percentage_threshold"`
}

// DefaultSchemaContext returns the context for the public schema with the
// default thresholds.
func DefaultSchemaContext() SchemaContext {
	return SchemaContext{
		SchemaName:                   DefaultSchemaName,
		BloatPercentageThreshold:     DefaultBloatPercentageThreshold,
		RemainingPercentageThreshold: DefaultRemainingPercentageThreshold,
	}
}

// NewSchemaContext validates the arguments and returns a context with a
// lowercased schema name.
func NewSchemaContext(schema string, bloatPct, remainingPct float64) (SchemaContext, error) {
	sc := SchemaContext{
		SchemaName:                   strings.ToLower(strings.TrimSpace(schema)),
		BloatPercentageThreshold:     bloatPct,
		RemainingPercentageThreshold: remainingPct,
	}
	if err := sc.Validate(); err != nil {
		return SchemaContext{}, err
	}
	return sc, nil
}

// Validate checks the schema name and that both thresholds are percentages.
func (sc SchemaContext) Validate() error {
	if strings.TrimSpace(sc.SchemaName) == "" {
		return apperrors.NewValidationError("schemaName", sc.SchemaName, "cannot be blank")
	}
	if err := validPercent(sc.BloatPercentageThreshold, "bloatPercentageThreshold"); err != nil {
		return err
	}
	return validPercent(sc.RemainingPercentageThreshold, "remainingPercentageThreshold")
}

func validPercent(v float64, field string) error {
	if v < 0 || v > 100 || v != v {
		return apperrors.NewValidationError(field, fmt.Sprint(v), "must be in the range from 0 to 100")
	}
	return nil
}

// IsDefaultSchema reports whether the context targets the public schema.
func (sc SchemaContext) IsDefaultSchema() bool {
	return strings.EqualFold(sc.SchemaName, DefaultSchemaName)
}

// EnrichWithSchema prefixes objectName with the schema unless the schema is
// public or the name is already qualified with it.
func (sc SchemaContext) EnrichWithSchema(objectName string) string {
	if sc.IsDefaultSchema() || objectName == "" {
		return objectName
	}
	prefix := sc.SchemaName + "."
	if strings.HasPrefix(strings.ToLower(objectName), prefix) {
		return objectName
	}
	return prefix + objectName
}

func (sc SchemaContext) String() string {
	return fmt.Sprintf("SchemaContext{schema=%s, bloat=%g, remaining=%g}",
		sc.SchemaName, sc.BloatPercentageThreshold, sc.RemainingPercentageThreshold)
}
