package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/promplate/go-promplate"
)

// dataFlags are the context data flags shared by several commands.
type dataFlags struct {
	inline   string
	filePath string
}

func (f *dataFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.inline, FlagData, FlagDataShort, "", "context data as JSON or YAML")
	cmd.Flags().StringVarP(&f.filePath, FlagDataFile, FlagDataFileShort, "", "context data file (JSON or YAML)")
}

// context loads the data into a fresh Context.
func (f *dataFlags) context() (*promplate.Context, error) {
	data, err := loadData(f.inline, f.filePath)
	if err != nil {
		return nil, inputError(ErrMsgInvalidData, err)
	}
	return promplate.NewContext(data), nil
}

// loadData decodes context data. JSON is read through the YAML decoder, which
// accepts it as a subset.
func loadData(inline, filePath string) (map[string]any, error) {
	var raw []byte
	switch {
	case filePath != "":
		data, err := os.ReadFile(filePath)
		if err != nil {
			return nil, err
		}
		raw = data
	case inline != "":
		raw = []byte(inline)
	default:
		return make(map[string]any), nil
	}

	var result map[string]any
	if err := yaml.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	if result == nil {
		result = make(map[string]any)
	}
	return result, nil
}

// readInput reads content from a file or stdin.
func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == InputSourceStdin {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

// writeOutput writes content to a file or stdout.
func writeOutput(path string, data []byte, stdout io.Writer) error {
	if path == FlagDefaultOutput {
		_, err := stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, FilePermissions)
}

// readDocument reads a template document given by path, "-" meaning stdin.
// Documents read from stdin are unnamed.
func readDocument(path string, stdin io.Reader) (*promplate.Document, error) {
	if path == InputSourceStdin {
		data, err := readInput(path, stdin)
		if err != nil {
			return nil, inputError(ErrMsgReadFileFailed, err)
		}
		doc, err := promplate.ParseDocument(data, path)
		if err != nil {
			return nil, inputError(ErrMsgReadFileFailed, err)
		}
		return doc, nil
	}
	doc, err := promplate.ReadDocument(path)
	if err != nil {
		return nil, inputError(ErrMsgReadFileFailed, err)
	}
	return doc, nil
}
