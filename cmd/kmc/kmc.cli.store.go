package main

import (
	"fmt"
	"strings"

	"github.com/itsatony/go-kmc"
	"github.com/spf13/cobra"
)

// storedOutput is the structured form of a stored document
type storedOutput struct {
	ID        string            `json:"id" yaml:"id"`
	Name      string            `json:"name" yaml:"name"`
	Version   int               `json:"version" yaml:"version"`
	Tags      []string          `json:"tags,omitempty" yaml:"tags,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	CreatedBy string            `json:"created_by,omitempty" yaml:"created_by,omitempty"`
	CreatedAt string            `json:"created_at" yaml:"created_at"`
	Source    string            `json:"source,omitempty" yaml:"source,omitempty"`
}

func newStoreCmd(global *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   CmdNameStore,
		Short: "Manage versioned KMC documents in a storage backend",
		Long: `Manage versioned KMC documents. The backend comes from --driver/--dsn or
the storage section of the configuration file.`,
	}
	cmd.AddCommand(
		newStoreSaveCmd(global),
		newStoreGetCmd(global),
		newStoreListCmd(global),
		newStoreDeleteCmd(global),
	)
	return cmd
}

// withStorage opens the configured storage for the duration of fn.
func withStorage(global *globalOptions, fn func(kmc.DocumentStorage) error) error {
	cfg, err := global.loadConfig()
	if err != nil {
		return err
	}
	storage, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer storage.Close()
	return fn(storage)
}

func storageFailure(err error) error {
	if kmc.IsNotFound(err) {
		return failWith(ExitCodeInputError, ErrMsgStorageFailed, err)
	}
	return failWith(ExitCodeError, ErrMsgStorageFailed, err)
}

func newStoreSaveCmd(global *globalOptions) *cobra.Command {
	var (
		tags   []string
		author string
	)

	cmd := &cobra.Command{
		Use:   CmdNameSave + " <name> [file]",
		Short: "Save a document as a new version",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := readInput(inputArg(args[1:]), cmd.InOrStdin())
			if err != nil {
				return failWith(ExitCodeInputError, ErrMsgReadFileFailed, err)
			}
			return withStorage(global, func(storage kmc.DocumentStorage) error {
				doc := &kmc.StoredDocument{
					Name:      args[0],
					Source:    string(source),
					Tags:      tags,
					CreatedBy: author,
				}
				if err := storage.Save(cmd.Context(), doc); err != nil {
					return storageFailure(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), StoreTextSaved, doc.Name, doc.Version, doc.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringArrayVar(&tags, FlagTag, nil, "tag (repeatable)")
	cmd.Flags().StringVar(&author, FlagAuthor, "", "author recorded as created_by")
	return cmd
}

func newStoreGetCmd(global *globalOptions) *cobra.Command {
	var (
		version int
		format  string
	)

	cmd := &cobra.Command{
		Use:   CmdNameGet + " <name>",
		Short: "Print a stored document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format, OutputFormatText, OutputFormatJSON, OutputFormatYAML); err != nil {
				return err
			}
			return withStorage(global, func(storage kmc.DocumentStorage) error {
				var (
					doc *kmc.StoredDocument
					err error
				)
				if version > 0 {
					doc, err = storage.GetVersion(cmd.Context(), args[0], version)
				} else {
					doc, err = storage.Get(cmd.Context(), args[0])
				}
				if err != nil {
					return storageFailure(err)
				}

				if format == OutputFormatText {
					_, err = fmt.Fprint(cmd.OutOrStdout(), doc.Source)
					return err
				}
				out := toStoredOutput(doc)
				out.Source = doc.Source
				data, err := encodeStructured(format, out)
				if err != nil {
					return failWith(ExitCodeError, ErrMsgEncodeFailed, err)
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			})
		},
	}

	cmd.Flags().IntVar(&version, FlagVersion, 0, "version to print (default: latest)")
	cmd.Flags().StringVarP(&format, FlagFormat, FlagFormatShort, FlagDefaultFormat, "output format: text, json, yaml")
	return cmd
}

func newStoreListCmd(global *globalOptions) *cobra.Command {
	var (
		query  kmc.DocumentQuery
		format string
	)

	cmd := &cobra.Command{
		Use:   CmdNameList,
		Short: "List stored documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format, OutputFormatText, OutputFormatJSON, OutputFormatYAML); err != nil {
				return err
			}
			return withStorage(global, func(storage kmc.DocumentStorage) error {
				docs, err := storage.List(cmd.Context(), &query)
				if err != nil {
					return storageFailure(err)
				}

				if format == OutputFormatText {
					for _, doc := range docs {
						fmt.Fprintf(cmd.OutOrStdout(), StoreTextListRow, doc.Name, doc.Version, strings.Join(doc.Tags, ","))
					}
					return nil
				}
				out := make([]storedOutput, 0, len(docs))
				for _, doc := range docs {
					out = append(out, toStoredOutput(doc))
				}
				data, err := encodeStructured(format, out)
				if err != nil {
					return failWith(ExitCodeError, ErrMsgEncodeFailed, err)
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&query.NamePrefix, FlagPrefix, "", "only names with this prefix")
	flags.StringArrayVar(&query.Tags, FlagTag, nil, "only documents with this tag (repeatable)")
	flags.BoolVar(&query.IncludeAllVersions, FlagAllVersions, false, "list every version, not just the latest")
	flags.StringVarP(&format, FlagFormat, FlagFormatShort, FlagDefaultFormat, "output format: text, json, yaml")
	return cmd
}

func newStoreDeleteCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   CmdNameDelete + " <name>",
		Short: "Delete every version of a stored document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStorage(global, func(storage kmc.DocumentStorage) error {
				if err := storage.Delete(cmd.Context(), args[0]); err != nil {
					return storageFailure(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), StoreTextDeleted, args[0])
				return nil
			})
		},
	}
}

func toStoredOutput(doc *kmc.StoredDocument) storedOutput {
	return storedOutput{
		ID:        string(doc.ID),
		Name:      doc.Name,
		Version:   doc.Version,
		Tags:      doc.Tags,
		Metadata:  doc.Metadata,
		CreatedBy: doc.CreatedBy,
		CreatedAt: doc.CreatedAt.Format(FmtTimestamp),
	}
}
