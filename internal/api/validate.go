package api

import (
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"attendance-backend/internal/model"
)

var registerOnce sync.Once

// registerValidators adds the custom binding tags used by request structs.
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("pointsource", validPointSource)
	})
}

// validPointSource accepts only the categories an admin may record by hand.
func validPointSource(fl validator.FieldLevel) bool {
	s := model.SourceCategory(fl.Field().String())
	return s.Valid() && s.Manual()
}
