package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	Validate   *validator.Validate
	translator ut.Translator
)

func init() {
	Validate = validator.New(validator.WithRequiredStructEnabled())

	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ = uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(Validate, translator)

	// Report JSON names instead of Go field names.
	Validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// schemaFor returns a fresh value of the typed field set stored in a collection, or nil for loose collections.
func schemaFor(collection string) interface{} {
	switch collection {
	case AssignmentsCollection:
		return &Assignment{}
	case CompletionsCollection:
		return &Completion{}
	case ScoresCollection:
		return &Score{}
	case SessionsCollection:
		return &Session{}
	case NotesCollection:
		return &Note{}
	case VideosCollection:
		return &Video{}
	case CertificatesCollection:
		return &Certificate{}
	case NotificationsCollection:
		return &Notification{}
	case ConversationsCollection:
		return &ConversationMeta{}
	case ActivityCollection:
		return &Activity{}
	}
	if strings.HasPrefix(collection, ConversationsCollection+"/") && strings.HasSuffix(collection, "/"+messagesSuffix) {
		return &Message{}
	}
	return nil
}

// ValidateFields checks a full field set against the collection schema.
func ValidateFields(collection string, fields Fields) error {
	return validateFields(collection, fields, false)
}

// ValidatePartial checks only the keys present in a merge.
func ValidatePartial(collection string, fields Fields) error {
	return validateFields(collection, fields, true)
}

func validateFields(collection string, fields Fields, partial bool) error {
	target := schemaFor(collection)
	if target == nil {
		return nil
	}

	data, err := json.Marshal(fields)
	if err != nil {
		return NewValidationError("", fmt.Sprintf("fields are not JSON-serializable: %v", err))
	}
	if err := json.Unmarshal(data, target); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return NewValidationError(typeErr.Field, fmt.Sprintf("must be of type %s", typeErr.Type))
		}
		return NewValidationError("", err.Error())
	}

	if partial {
		names := structFieldNames(target, fields)
		if len(names) == 0 {
			return nil
		}
		return translate(Validate.StructPartial(target, names...))
	}
	return translate(Validate.Struct(target))
}

// ValidateStruct validates a request DTO and converts the first failure to a ValidationError.
func ValidateStruct(v interface{}) error {
	return translate(Validate.Struct(v))
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return NewValidationError(fe.Field(), fe.Translate(translator))
	}
	return NewValidationError("", err.Error())
}

// structFieldNames maps the JSON keys present in fields to Go field names of target.
func structFieldNames(target interface{}, fields Fields) []string {
	t := reflect.TypeOf(target).Elem()
	names := make([]string, 0, len(fields))
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		key := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if _, ok := fields[key]; ok {
			names = append(names, f.Name)
		}
	}
	return names
}
