package config

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/robfig/cron/v3"
)

//go:embed schema.cue
var schemaCUE string

// Validate checks cfg against the CUE schema, then checks the values CUE
// cannot: the timezone name and the cron schedule.
func Validate(cfg *Config) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("config: compile schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	value := ctx.Encode(cfg)
	if err := value.Err(); err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}

	if err := def.Unify(value).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("config: invalid: %s", cueerrors.Details(err, nil))
	}

	if _, err := cfg.Location(); err != nil {
		return err
	}
	if _, err := cron.ParseStandard(cfg.SyncSchedule); err != nil {
		return fmt.Errorf("config: sync_schedule %q: %w", cfg.SyncSchedule, err)
	}
	return nil
}
