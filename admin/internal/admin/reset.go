package admin

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/malbeclabs/solarfund/api/config"
	"github.com/malbeclabs/solarfund/crowdfund/pkg/energy"
)

// Deleter is a document backend that can drop a document by key.
type Deleter interface {
	Delete(ctx context.Context, key string) error
	Name() string
}

// Document is one stored document to reset.
type Document struct {
	Label   string
	Key     string
	Backend Deleter
}

type ResetOptions struct {
	DryRun      bool
	SkipConfirm bool
	In          io.Reader
	Out         io.Writer
}

// Documents lists the campaign and energy documents held by stores. The
// campaign document is keyed by operator identity, which only shared
// backends need.
func Documents(stores *config.Stores, operator string) ([]Document, error) {
	entries := []struct {
		label   string
		key     string
		backend any
	}{
		{"campaign", operator, stores.Campaign},
		{"energy records", energy.RecordsKey, stores.EnergyRecords},
		{"sensor badges", energy.BadgesKey, stores.EnergyBadges},
	}
	docs := make([]Document, 0, len(entries))
	for _, e := range entries {
		d, ok := e.backend.(Deleter)
		if !ok {
			return nil, fmt.Errorf("backend for %s documents does not support delete", e.label)
		}
		if e.key == "" && d.Name() != "file" {
			return nil, errors.New("operator identity is required to reset the campaign document")
		}
		docs = append(docs, Document{Label: e.label, Key: e.key, Backend: d})
	}
	return docs, nil
}

// ResetDocuments deletes every document after confirmation.
func ResetDocuments(ctx context.Context, log *slog.Logger, docs []Document, opts ResetOptions) error {
	if len(docs) == 0 {
		fmt.Fprintln(opts.Out, "No documents to reset")
		return nil
	}

	fmt.Fprintf(opts.Out, "⚠️  WARNING: This will DELETE %d document(s):\n\n", len(docs))
	for _, d := range docs {
		fmt.Fprintf(opts.Out, "  - %s (%s)\n", d.Label, d.Backend.Name())
	}

	if opts.DryRun {
		fmt.Fprintln(opts.Out, "\n[DRY RUN] Would delete the above documents")
		return nil
	}

	if !opts.SkipConfirm {
		ok, err := confirm(opts.In, opts.Out)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}

	for _, d := range docs {
		if err := d.Backend.Delete(ctx, d.Key); err != nil {
			return fmt.Errorf("failed to delete %s document: %w", d.Label, err)
		}
		log.Debug("admin: document deleted", "label", d.Label, "backend", d.Backend.Name())
		fmt.Fprintf(opts.Out, "  ✓ Deleted %s\n", d.Label)
	}

	fmt.Fprintf(opts.Out, "\nSuccessfully deleted %d document(s)\n", len(docs))
	return nil
}

func confirm(in io.Reader, out io.Writer) (bool, error) {
	fmt.Fprintf(out, "\n⚠️  This is a DESTRUCTIVE operation that cannot be undone!\n")
	fmt.Fprintf(out, "Type 'yes' to confirm: ")

	response, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}

	if strings.TrimSpace(strings.ToLower(response)) != "yes" {
		fmt.Fprintf(out, "\nConfirmation failed. Operation cancelled.\n")
		return false, nil
	}
	fmt.Fprintln(out)
	return true, nil
}
