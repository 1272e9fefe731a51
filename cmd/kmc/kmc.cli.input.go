package main

import (
	"encoding/json"
	"errors"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// readInput reads content from a file or stdin
func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "" || path == InputSourceStdin {
		return io.ReadAll(stdin)
	}

	return os.ReadFile(path)
}

// writeOutput writes content to a file or stdout
func writeOutput(path string, data []byte, stdout io.Writer) error {
	if path == "" || path == FlagDefaultOutput {
		_, err := stdout.Write(data)
		return err
	}

	return os.WriteFile(path, data, FilePermissions)
}

// encodeStructured renders v as indented JSON or YAML.
func encodeStructured(format string, v any) ([]byte, error) {
	switch format {
	case OutputFormatJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case OutputFormatYAML:
		return yaml.Marshal(v)
	default:
		return nil, errors.New(ErrMsgInvalidFormat)
	}
}

// checkFormat validates a --format value against the allowed formats.
func checkFormat(format string, allowed ...string) error {
	for _, f := range allowed {
		if format == f {
			return nil
		}
	}
	return failWith(ExitCodeUsageError, ErrMsgInvalidFormat, errors.New(format))
}

// inputArg returns the optional single input path argument.
func inputArg(args []string) string {
	if len(args) == 0 {
		return InputSourceStdin
	}
	return args[0]
}
