package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/stanstork/stratum/internal/config"
	"github.com/stanstork/stratum/internal/kernelerr"
	"github.com/stanstork/stratum/internal/statestore"
)

// partID is fixed at "0": the kernel runs one producer/consumer pair
// per item with no sub-item partitioning (see internal/kernel).
const partID = "0"

var (
	progressRun   string
	progressItem  string
	progressWatch bool
)

var progressCmd = &cobra.Command{
	Use:     "progress",
	Short:   "Show (or serve) the checkpoint state of one run/item",
	GroupID: GroupRuntime,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := statestore.Open(os.ExpandEnv(config.GetString("runtime.state_dir")))
		if err != nil {
			return kernelerr.Initialization("opening state store", err)
		}
		defer store.Close()

		if progressWatch {
			return serveProgress(store)
		}
		return printCheckpoint(store, progressRun, progressItem)
	},
}

func init() {
	progressCmd.Flags().StringVar(&progressRun, "run", "", "run id")
	progressCmd.Flags().StringVar(&progressItem, "item", "", "item id")
	progressCmd.Flags().BoolVar(&progressWatch, "watch", false, "serve /progress over HTTP on runtime.progress_addr instead of printing once")
	progressCmd.MarkFlagRequired("run")
	progressCmd.MarkFlagRequired("item")
}

func printCheckpoint(store *statestore.Store, runID, itemID string) error {
	cp, ok := store.LoadCheckpoint(runID, itemID, partID)
	if !ok {
		return kernelerr.Consumer(kernelerr.ConsumerStateLoad, fmt.Errorf("no checkpoint for run=%s item=%s", runID, itemID))
	}
	if jsonOutput {
		data, err := json.MarshalIndent(cp, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}
	fmt.Printf("run=%s item=%s stage=%s rows_done=%d updated_at=%s\n", cp.RunID, cp.ItemID, cp.Stage, cp.RowsDone, cp.UpdatedAt)
	return nil
}

// serveProgress runs an HTTP server exposing /progress?run=...&item=...
// as JSON, for a long-lived watcher process. Grounded on
// runtime.progress_addr's description in config.RuntimeKeys.
func serveProgress(store *statestore.Store) error {
	addr := config.GetString("runtime.progress_addr")
	mux := http.NewServeMux()
	mux.HandleFunc("/progress", func(w http.ResponseWriter, r *http.Request) {
		run := r.URL.Query().Get("run")
		item := r.URL.Query().Get("item")
		cp, ok := store.LoadCheckpoint(run, item, partID)
		if !ok {
			http.Error(w, "no checkpoint for run/item", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(cp)
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-rootCtx.Done()
		srv.Close()
	}()
	fmt.Printf("serving progress on %s\n", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return kernelerr.Initialization("serving progress endpoint", err)
	}
	return nil
}
