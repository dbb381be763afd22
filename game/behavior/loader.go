package behavior

import (
	"fmt"
	"strings"
	"time"

	"github.com/kasuganosora/desktoppet/game/needs"
	"github.com/kasuganosora/desktoppet/game/script"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// File is the on-disk catalog document (YAML or JSON).
type File struct {
	Behaviors []FileDefinition `json:"behaviors" mapstructure:"behaviors" jsonschema:"required"`
}

// FileDefinition is one designer-authored behavior.
type FileDefinition struct {
	ID           string `json:"id" mapstructure:"id" jsonschema:"required,minLength=1"`
	Lang         string `json:"lang,omitempty" mapstructure:"lang" jsonschema:"enum=expr,enum=js,default=expr"`
	Precondition string `json:"precondition,omitempty" mapstructure:"precondition" jsonschema:"description=Boolean expression; empty means always eligible"`
	Utility      string `json:"utility" mapstructure:"utility" jsonschema:"required,description=Numeric expression scored within the unit interval"`
	Duration     string `json:"duration" mapstructure:"duration" jsonschema:"required,description=Go duration such as 4s"`
	// Interruptible defaults to true.
	Interruptible *bool       `json:"interruptible,omitempty" mapstructure:"interruptible"`
	Animation     string      `json:"animation,omitempty" mapstructure:"animation"`
	Movement      string      `json:"movement,omitempty" mapstructure:"movement" jsonschema:"enum=none,enum=to_cursor,enum=follow_cursor,enum=wander,enum=to_window"`
	Speed         float64     `json:"speed,omitempty" mapstructure:"speed" jsonschema:"minimum=0"`
	Effects       needs.Rates `json:"effects,omitempty" mapstructure:"effects"`
}

// Compile turns a file entry into a Definition. Malformed expressions,
// durations and movements are reported as ErrInvalidDefinition.
func Compile(fd FileDefinition, engine *script.Engine, logger *zap.Logger) (Definition, error) {
	id := strings.TrimSpace(fd.ID)
	if id == "" {
		return nil, fmt.Errorf("%w: empty id", ErrInvalidDefinition)
	}
	if strings.TrimSpace(fd.Utility) == "" {
		return nil, fmt.Errorf("%w: %q has no utility", ErrInvalidDefinition, id)
	}
	dur, err := time.ParseDuration(fd.Duration)
	if err != nil {
		return nil, fmt.Errorf("%w: %q duration: %v", ErrInvalidDefinition, id, err)
	}
	move, ok := ParseMovement(fd.Movement)
	if !ok {
		return nil, fmt.Errorf("%w: %q movement %q", ErrInvalidDefinition, id, fd.Movement)
	}

	var cond condition
	var score scorer
	switch fd.Lang {
	case "", "expr":
		cond, score, err = compileExpr(id, fd)
	case "js":
		cond, score, err = compileJS(id, fd, engine)
	default:
		err = fmt.Errorf("%w: %q lang %q", ErrInvalidDefinition, id, fd.Lang)
	}
	if err != nil {
		return nil, err
	}

	interruptible := true
	if fd.Interruptible != nil {
		interruptible = *fd.Interruptible
	}
	return &Scripted{
		id: id,
		profile: Profile{
			Duration:      dur,
			Interruptible: interruptible,
			Hint:          Hint{Animation: fd.Animation, Movement: move, Speed: fd.Speed},
			Effects:       fd.Effects,
		},
		cond:   cond,
		score:  score,
		logger: logger.Named("behavior"),
	}, nil
}

// ReadFile decodes a catalog document.
func ReadFile(path string) (*File, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("behavior: read catalog %s: %w", path, err)
	}
	f := &File{}
	if err := v.Unmarshal(f); err != nil {
		return nil, fmt.Errorf("behavior: decode catalog %s: %w", path, err)
	}
	return f, nil
}

// LoadFile compiles every entry of the catalog at path and registers it.
// Entries that fail to compile are recorded on the catalog and surface from
// Seal together with any other problem. The returned error is only for an
// unreadable file.
func (c *Catalog) LoadFile(path string, engine *script.Engine, logger *zap.Logger) error {
	f, err := ReadFile(path)
	if err != nil {
		return err
	}
	for i, fd := range f.Behaviors {
		def, err := Compile(fd, engine, logger)
		if err != nil {
			c.problems = append(c.problems, fmt.Errorf("%s[%d]: %w", path, i, err))
			continue
		}
		_ = c.Register(def)
	}
	return nil
}
