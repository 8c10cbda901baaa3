package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/MetaCell/sckan-composer-sub001/internal/ingest"
)

func newIngestStatementsCommand(app *appContext) *cobra.Command {
	var (
		input           string
		updateUpstream  bool
		updateEntities  bool
		anomaliesPath   string
		ingestedPath    string
	)
	cmd := &cobra.Command{
		Use:   "ingest-statements",
		Short: "Ingest neurondm statement records",
		RunE: func(cmd *cobra.Command, args []string) error {
			started := time.Now()
			records, err := ingest.LoadRecords(input)
			if err != nil {
				summarize(app, "ingest-statements", started, err)
				return err
			}
			opts := []ingest.Option{
				ingest.WithLogger(app.logger),
				ingest.WithUpdateUpstream(updateUpstream),
				ingest.WithUpdateAnatomicalEntities(updateEntities),
			}
			if anomaliesPath != "" {
				opts = append(opts, ingest.WithAnomalyLog(ingest.NewAnomalyLog(anomaliesPath)))
			}
			if ingestedPath != "" {
				opts = append(opts, ingest.WithIngestedLog(ingest.NewIngestedLog(ingestedPath)))
			}
			pipeline := ingest.NewPipeline(app.store, opts...)
			summary, err := pipeline.Run(cmd.Context(), records)
			summarize(app, "ingest-statements", started, err,
				"processed", summary.Processed,
				"created", summary.Created,
				"updated", summary.Updated,
				"unchanged", summary.Unchanged,
				"invalidated", summary.Invalidated,
				"failed", summary.Failed,
				"anomalies", summary.Anomalies,
			)
			if err != nil {
				return err
			}
			if summary.Failed > 0 {
				return fmt.Errorf("%d records failed ingestion", summary.Failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "path to the statement records JSON file")
	cmd.Flags().BoolVar(&updateUpstream, "update_upstream", false, "demote approved forward targets when the path shape changed")
	cmd.Flags().BoolVar(&updateEntities, "update_anatomic_entities", false, "upgrade simple entities to layer/region composites where metadata permits")
	cmd.Flags().StringVar(&anomaliesPath, "anomalies_log", "ingestion_anomalies_log.csv", "path to the anomaly CSV sink")
	cmd.Flags().StringVar(&ingestedPath, "ingested_log", "ingested_log.csv", "path to the success CSV sink")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func newIngestCurieIDCommand(app *appContext) *cobra.Command {
	var fullImports, labelImports string
	cmd := &cobra.Command{
		Use:   "ingest-curie-id",
		Short: "Stamp curie ids on statements missing one",
		RunE: func(cmd *cobra.Command, args []string) error {
			started := time.Now()
			maps := ingest.CurieMaps{}
			var err error
			if maps.FullImports, err = ingest.LoadCurieMap(fullImports); err != nil {
				summarize(app, "ingest-curie-id", started, err)
				return err
			}
			if maps.LabelImports, err = ingest.LoadCurieMap(labelImports); err != nil {
				summarize(app, "ingest-curie-id", started, err)
				return err
			}
			stamped, err := ingest.IngestCurieIDs(cmd.Context(), app.store, maps)
			summarize(app, "ingest-curie-id", started, err, "stamped", stamped)
			return err
		},
	}
	cmd.Flags().StringVar(&fullImports, "full_imports", "", "path to the full-import map JSON (reference URI to curie id)")
	cmd.Flags().StringVar(&labelImports, "label_imports", "", "path to the label-import map JSON (population label to curie id)")
	_ = cmd.MarkFlagRequired("full_imports")
	_ = cmd.MarkFlagRequired("label_imports")
	return cmd
}
