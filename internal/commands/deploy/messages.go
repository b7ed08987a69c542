package deploycmd

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const (
	batchMessageType      = "contentpack.deploy.batch"
	dumpMessageType       = "contentpack.deploy.dump"
	showSchemaMessageType = "contentpack.deploy.show_schema"
)

// Schema formats accepted by ShowSchemaCommand.
const (
	FormatSQL        = "sql"
	FormatTypeScript = "typescript"
	FormatJSONSchema = "jsonschema"
)

// BatchCommand deploys the collection to its remote table store and
// object backends.
type BatchCommand struct {
	// Force rewrites unchanged documents and re-uploads every object.
	Force bool `json:"force,omitempty"`
	// Preview targets the collection's preview database.
	Preview bool `json:"preview,omitempty"`
	// Prune deletes stored documents whose source file is gone.
	Prune bool `json:"prune,omitempty"`
	// Workers bounds concurrently processed documents; zero picks a default.
	Workers int `json:"workers,omitempty"`
	// DocumentTimeout limits the processing of a single document.
	DocumentTimeout time.Duration `json:"document_timeout,omitempty"`
}

// Type implements command.Message.
func (BatchCommand) Type() string { return batchMessageType }

func (cmd BatchCommand) Validate() error {
	return validation.ValidateStruct(&cmd,
		validation.Field(&cmd.Workers, validation.Min(0)),
		validation.Field(&cmd.DocumentTimeout, validation.Min(time.Duration(0))),
	)
}

// DumpCommand writes the collection to a local table file and a directory
// mirroring the remote pointer layout.
type DumpCommand struct {
	OutDir          string        `json:"out_dir"`
	Force           bool          `json:"force,omitempty"`
	Prune           bool          `json:"prune,omitempty"`
	Workers         int           `json:"workers,omitempty"`
	DocumentTimeout time.Duration `json:"document_timeout,omitempty"`
}

// Type implements command.Message.
func (DumpCommand) Type() string { return dumpMessageType }

func (cmd DumpCommand) Validate() error {
	return validation.ValidateStruct(&cmd,
		validation.Field(&cmd.OutDir, validation.Required, validation.By(func(value any) error {
			if strings.TrimSpace(value.(string)) == "" {
				return validation.NewError("contentpack.deploy.dump.out_dir_required", "output directory is required")
			}
			return nil
		})),
		validation.Field(&cmd.Workers, validation.Min(0)),
		validation.Field(&cmd.DocumentTimeout, validation.Min(time.Duration(0))),
	)
}

// ShowSchemaCommand prints one generated artifact.
type ShowSchemaCommand struct {
	Format string `json:"format"`
}

// Type implements command.Message.
func (ShowSchemaCommand) Type() string { return showSchemaMessageType }

func (cmd ShowSchemaCommand) Validate() error {
	return validation.ValidateStruct(&cmd,
		validation.Field(&cmd.Format, validation.Required, validation.In(FormatSQL, FormatTypeScript, FormatJSONSchema)),
	)
}
