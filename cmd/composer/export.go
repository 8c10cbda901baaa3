package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/MetaCell/sckan-composer-sub001/internal/blob"
	"github.com/MetaCell/sckan-composer-sub001/internal/export"
	"github.com/MetaCell/sckan-composer-sub001/pkg/domain"
)

func newExportCSVCommand(app *appContext) *cobra.Command {
	var userID, filepath string
	cmd := &cobra.Command{
		Use:   "export-csv",
		Short: "Export approved statements to a CSV batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			started := time.Now()
			blobs, err := blob.Open(cmd.Context())
			if err != nil {
				summarize(app, "export-csv", started, err)
				return err
			}
			exporter := export.NewExporter(app.store,
				export.WithLogger(app.logger),
				export.WithBlobStore(blobs),
			)
			result, err := exporter.Run(cmd.Context(), userID)
			if err != nil {
				summarize(app, "export-csv", started, err)
				return err
			}
			if filepath != "" {
				if err := os.WriteFile(filepath, result.CSV, 0o644); err != nil {
					summarize(app, "export-csv", started, err)
					return err
				}
			}
			summarize(app, "export-csv", started, nil,
				"batch_id", result.BatchID,
				"statements", len(result.StatementIDs),
				"artifact_key", result.ArtifactKey,
				"filepath", filepath,
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user_id", "", "id of the requesting staff user")
	cmd.Flags().StringVar(&filepath, "filepath", "", "also write the CSV to this path")
	_ = cmd.MarkFlagRequired("user_id")
	return cmd
}

// composerData is the JSON payload of the composer-data command.
type composerData struct {
	CustomRelationships []domain.Relationship `json:"custom_relationships"`
	StatementAlertURIs  []string              `json:"statement_alert_uris"`
}

func newComposerDataCommand(app *appContext) *cobra.Command {
	var outputPath string
	cmd := &cobra.Command{
		Use:   "composer-data",
		Short: "Dump custom relationships and statement alert URIs as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			started := time.Now()
			payload := composerData{
				CustomRelationships: app.store.ListRelationships(),
				StatementAlertURIs:  []string{},
			}
			seen := map[string]struct{}{}
			for _, cs := range app.store.ListConnectivityStatements() {
				for _, uri := range cs.AlertURIs {
					if _, dup := seen[uri]; dup {
						continue
					}
					seen[uri] = struct{}{}
					payload.StatementAlertURIs = append(payload.StatementAlertURIs, uri)
				}
			}
			data, err := json.MarshalIndent(payload, "", "  ")
			if err == nil {
				err = os.WriteFile(outputPath, data, 0o644)
			}
			summarize(app, "composer-data", started, err,
				"relationships", len(payload.CustomRelationships),
				"alert_uris", len(payload.StatementAlertURIs),
				"output", outputPath,
			)
			return err
		},
	}
	cmd.Flags().StringVar(&outputPath, "output_filepath", "", "path of the JSON dump to write")
	_ = cmd.MarkFlagRequired("output_filepath")
	return cmd
}
