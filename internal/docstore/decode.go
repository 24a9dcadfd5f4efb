package docstore

import (
	"fmt"
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"

	"github.com/scanara-ai/scanara-backend/internal/models"
)

var validate = validator.New()

// Decode maps a document onto a typed record using its json tags and then
// checks the record's validate tags. A document that cannot be mapped or is
// missing required fields yields a models.ErrValidation error.
func Decode(doc *Document, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:    "json",
		Result:     out,
		DecodeHook: timeToString,
	})
	if err != nil {
		return fmt.Errorf("create decoder: %w", err)
	}

	if err := dec.Decode(doc.Fields); err != nil {
		return &models.Error{
			Kind:    models.ErrValidation,
			Message: fmt.Sprintf("malformed document %s: %v", doc.ID, err),
		}
	}

	if err := validate.Struct(out); err != nil {
		return &models.Error{
			Kind:    models.ErrValidation,
			Message: fmt.Sprintf("invalid document %s: %v", doc.ID, err),
		}
	}
	return nil
}

// timeToString lets time-valued fields land in string record fields.
func timeToString(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to.Kind() != reflect.String {
		return data, nil
	}
	switch data.(type) {
	case time.Time, *time.Time, Timestamp, *Timestamp:
		return NormalizeTimestamp(data), nil
	}
	return data, nil
}
