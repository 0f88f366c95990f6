package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tendant/assetstore/pkg/assetstore"
	"github.com/tendant/assetstore/pkg/assetstore/scan"
)

// NewPutCommand creates the put command
func NewPutCommand(flags *globalFlags) *cobra.Command {
	var thumb bool
	var thumbSize int
	var mimeType string

	cmd := &cobra.Command{
		Use:   "put <file>...",
		Short: "Store files and print their digests",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := flags.openRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			p := printer{out: cmd.OutOrStdout(), json: flags.jsonOutput}
			type putOutput struct {
				File string `json:"file"`
				*assetstore.UploadResult
				Error string `json:"error,omitempty"`
			}
			var results []putOutput
			var errs []error

			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					errs = append(errs, err)
					results = append(results, putOutput{File: path, Error: err.Error()})
					continue
				}
				res, err := rt.Service.UploadAsset(cmd.Context(), assetstore.UploadRequest{
					Data:              data,
					Filename:          filepath.Base(path),
					MimeType:          mimeType,
					GenerateThumbnail: thumb,
					ThumbnailSize:     thumbSize,
				})
				out := putOutput{File: path, UploadResult: res}
				if err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", path, err))
					out.Error = err.Error()
				}
				results = append(results, out)
			}

			if p.json {
				if err := p.JSON(results); err != nil {
					return err
				}
				return errors.Join(errs...)
			}
			for _, r := range results {
				switch {
				case r.UploadResult == nil:
					p.Failure("%s: %s", r.File, r.Error)
				case r.Error != "":
					p.Warning("%s  %s (%s)", r.Digest, r.File, r.Error)
				default:
					p.Success("%s  %s %s", r.Digest, r.File, styleMuted.Render(bytesLabel(r.Size)))
					if !r.ThumbnailDigest.IsZero() {
						p.Muted("  thumbnail %s", r.ThumbnailDigest)
					}
				}
			}
			return errors.Join(errs...)
		},
	}

	cmd.Flags().BoolVar(&thumb, "thumbnail", false, "derive a thumbnail for image files")
	cmd.Flags().IntVar(&thumbSize, "thumbnail-size", 0, "thumbnail bounding box in pixels (default: configured size)")
	cmd.Flags().StringVar(&mimeType, "mime-type", "", "declared MIME type (default: inferred)")

	return cmd
}

// NewPathCommand creates the path command
func NewPathCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "path <digest|asset://digest>",
		Short: "Print the filesystem path of a stored asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token := args[0]
			if strings.Contains(token, "://") {
				var err error
				if token, err = assetstore.ParseAssetURI(token, assetstore.DefaultScheme); err != nil {
					return err
				}
			}

			rt, err := flags.openRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			path, err := rt.Service.FetchAssetPath(cmd.Context(), token)
			if err != nil {
				return err
			}

			p := printer{out: cmd.OutOrStdout(), json: flags.jsonOutput}
			if p.json {
				return p.JSON(map[string]string{"digest": token, "path": path})
			}
			fmt.Fprintln(p.out, path)
			return nil
		},
	}
}

// NewRemoveCommand creates the rm command
func NewRemoveCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <digest>...",
		Short: "Delete stored assets",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := flags.openRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			p := printer{out: cmd.OutOrStdout(), json: flags.jsonOutput}
			deleted := map[string]bool{}
			var errs []error
			for _, token := range args {
				existed, err := rt.Service.DeleteAsset(cmd.Context(), token)
				if err != nil {
					errs = append(errs, err)
					if !p.json {
						p.Failure("%s: %v", token, err)
					}
					continue
				}
				deleted[token] = existed
				if p.json {
					continue
				}
				if existed {
					p.Success("deleted %s", token)
				} else {
					p.Muted("not stored %s", token)
				}
			}
			if p.json {
				if err := p.JSON(deleted); err != nil {
					return err
				}
			}
			return errors.Join(errs...)
		},
	}
}

// NewImportCommand creates the import command
func NewImportCommand(flags *globalFlags) *cobra.Command {
	var thumbs bool

	cmd := &cobra.Command{
		Use:   "import <file|dir>...",
		Short: "Import files in parallel; directories are walked recursively",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := collectItems(args)
			if err != nil {
				return err
			}

			rt, err := flags.openRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			results, err := rt.Service.ImportBatch(cmd.Context(), items, assetstore.ImportOptions{GenerateThumbnails: thumbs})
			if err != nil {
				return err
			}

			p := printer{out: cmd.OutOrStdout(), json: flags.jsonOutput}
			failed := 0
			type itemOutput struct {
				assetstore.ItemResult
				Error string `json:"error,omitempty"`
			}
			out := make([]itemOutput, len(results))
			for i, r := range results {
				out[i] = itemOutput{ItemResult: r}
				if r.Err != nil {
					failed++
					out[i].Error = r.Err.Error()
				}
			}

			if p.json {
				if err := p.JSON(out); err != nil {
					return err
				}
			} else {
				for _, r := range out {
					if r.Error != "" {
						p.Failure("%s: %s", r.Filename, r.Error)
						continue
					}
					p.Success("%s  %s %s", r.Digest, r.Filename, styleMuted.Render(bytesLabel(r.Size)))
				}
				p.Muted("%d imported, %d failed", len(results)-failed, failed)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d items failed to import", failed, len(results))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&thumbs, "thumbnails", false, "derive thumbnails for image files")

	return cmd
}

// collectItems reads every regular file named by args, descending into
// directories. Filenames are kept relative to the directory argument.
func collectItems(args []string) ([]assetstore.BatchItem, error) {
	var items []assetstore.BatchItem
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			data, err := os.ReadFile(arg)
			if err != nil {
				return nil, err
			}
			items = append(items, assetstore.BatchItem{Data: data, Filename: filepath.Base(arg)})
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.Type().IsRegular() {
				return nil
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			rel, _ := filepath.Rel(arg, path)
			items = append(items, assetstore.BatchItem{Data: data, Filename: rel})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return items, nil
}

// NewCleanupCommand creates the cleanup command
func NewCleanupCommand(flags *globalFlags) *cobra.Command {
	var dryRun bool
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete assets no longer referenced by the record store",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := flags.openRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			report, err := rt.Service.Cleanup(cmd.Context(), assetstore.CleanupOptions{DryRun: dryRun, OlderThan: olderThan})
			if report == nil {
				return err
			}

			p := printer{out: cmd.OutOrStdout(), json: flags.jsonOutput}
			if p.json {
				if jerr := p.JSON(report); jerr != nil {
					return jerr
				}
				return err
			}

			if report.DryRun {
				p.Header("Cleanup (dry run)")
			} else {
				p.Header("Cleanup")
			}
			p.Field("Scanned", report.Scanned)
			p.Field("Candidates", len(report.Candidates))
			p.Field("Deleted", len(report.Deleted))
			p.Field("Reclaimed", bytesLabel(report.ReclaimedBytes))
			if report.TempPurged > 0 {
				p.Field("Temp files purged", report.TempPurged)
			}
			if report.DryRun && len(report.Candidates) > 0 {
				p.Muted("%s", digestList(report.Candidates))
			}
			for d, msg := range report.Failed {
				p.Failure("%s: %s", d, msg)
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report candidates without deleting")
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "only collect assets at least this old (e.g. 24h)")

	return cmd
}

// NewStatsCommand creates the stats command
func NewStatsCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show asset counts and sizes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := flags.openRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			stats, err := rt.Service.Statistics(cmd.Context())
			if err != nil {
				return err
			}

			p := printer{out: cmd.OutOrStdout(), json: flags.jsonOutput}
			if p.json {
				return p.JSON(stats)
			}
			p.Header(rt.Project.Name)
			p.Field("Root", rt.Project.AssetRoot())
			p.Field("Assets", stats.AssetCount)
			p.Field("Total size", bytesLabel(stats.TotalBytes))
			if stats.ReferencesAvailable {
				p.Field("Orphans", stats.OrphanCandidateCount)
			} else {
				p.Field("Orphans", styleMuted.Render("no reference source"))
			}
			return nil
		},
	}
}

// NewVerifyCommand creates the verify command
func NewVerifyCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Re-hash every stored asset and report corruption",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := flags.openRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			result, err := scan.New(rt.Repository, rt.Logger).Verify(cmd.Context())
			if err != nil {
				return err
			}

			p := printer{out: cmd.OutOrStdout(), json: flags.jsonOutput}
			if p.json {
				if err := p.JSON(result); err != nil {
					return err
				}
			} else {
				p.Header("Verify")
				p.Field("Assets", result.TotalFound)
				p.Field("Size", bytesLabel(result.TotalBytes))
				p.Field("Corrupt", result.TotalFailed)
				for d, msg := range result.Failed {
					p.Failure("%s: %s", d, msg)
				}
			}
			if result.TotalFailed > 0 {
				return fmt.Errorf("%d of %d assets failed verification", result.TotalFailed, result.TotalFound)
			}
			return nil
		},
	}
}
