// All global custom validations in Menuboard are defined here.
// These validations are allowed to be used anywhere in the application.

package validations

import (
	"Menuboard/pkg/log"
	"context"
	"sync"
	"time"

	"github.com/asaskevich/govalidator"
)

// govalidator keeps its tag maps globally, registering once is enough.
var once sync.Once

func RegisterCustomValidations(ctx context.Context, logger log.Logger) {
	once.Do(func() {
		// This global validation doesn't allow whitespace in input.
		govalidator.TagMap["nospace"] = govalidator.Validator(func(str string) bool {
			return !govalidator.HasWhitespace(str)
		})
		// Durations read from the environment must be strictly positive.
		govalidator.CustomTypeTagMap.Set("positive_duration", func(i interface{}, o interface{}) bool {
			d, ok := i.(time.Duration)
			return ok && d > 0
		})
		// Counters and limits read from the environment must be strictly positive.
		govalidator.CustomTypeTagMap.Set("positive_int", func(i interface{}, o interface{}) bool {
			n, ok := i.(int)
			return ok && n > 0
		})
		logger.WithCtx(ctx).Info().Msg("Successfully registered global custom validations.")
	})
}
