package main

import (
	"fmt"

	"github.com/s0t/drwebmirror/internal/config"
)

// dialectValue adapts config.Dialect to pflag.Value, the way rclone's
// own hash.Type implements pflag.Value for its --checksum-choice-style
// flags (fs/hash/hash_test.go asserts the interface; the concrete
// methods here follow the same String/Set/Type shape).
type dialectValue struct {
	d *config.Dialect
}

func newDialectValue(def config.Dialect, p *config.Dialect) *dialectValue {
	*p = def
	return &dialectValue{d: p}
}

func (v *dialectValue) String() string {
	if v.d == nil {
		return ""
	}
	return v.d.String()
}

func (v *dialectValue) Set(s string) error {
	d, ok := config.ParseDialect(s)
	if !ok {
		return fmt.Errorf("unknown dialect %q (want v4, v5, v5.2, v7 or android)", s)
	}
	*v.d = d
	return nil
}

func (v *dialectValue) Type() string { return "dialect" }
