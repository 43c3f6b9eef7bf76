package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/cloudfiles-go/internal/cloudfiles"
)

func newLsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls [container[/prefix]]",
		Short: "List containers, or the objects in a container",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLs,
	}

	cmd.Flags().IntP("limit", "n", 0, "return at most this many names")
	cmd.Flags().String("marker", "", "start listing after this name")
	cmd.Flags().BoolP("long", "l", false, "show size and modification time for each entry")
	cmd.Flags().BoolP("all", "a", false, "include directory markers (names without an extension)")

	return cmd
}

func newMkdirCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mkdir <container[/path]>",
		Short: "Create a container, or directory markers inside one",
		Args:  cobra.ExactArgs(1),
		RunE:  runMkdir,
	}

	cmd.Flags().BoolP("parents", "p", false, "no error if the container already exists")
	cmd.Flags().StringToString("meta", nil, "container metadata as key=value pairs")

	return cmd
}

func newRmdirCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rmdir <container>",
		Short: "Delete a container",
		Args:  cobra.ExactArgs(1),
		RunE:  runRmdir,
	}

	cmd.Flags().BoolP("force", "f", false, "delete every object in the container first")

	return cmd
}

func newPutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <local-file|-> <container[/name]>",
		Short: "Upload a local file, or stdin, as an object",
		Args:  cobra.ExactArgs(2),
		RunE:  runPut,
	}

	cmd.Flags().String("content-type", "", "content type (default: guessed from the name)")
	cmd.Flags().StringToString("meta", nil, "object metadata as key=value pairs")

	return cmd
}

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <container/name> [local-path|-]",
		Short: "Download an object",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runGet,
	}

	cmd.Flags().String("if-match", "", "only download if the ETag matches")
	cmd.Flags().String("if-none-match", "", "only download if the ETag differs")
	cmd.Flags().String("if-modified-since", "", "only download if modified after this HTTP date")
	cmd.Flags().String("if-unmodified-since", "", "only download if not modified after this HTTP date")
	cmd.Flags().String("range", "", "byte range, e.g. 0-1023 or -512")

	return cmd
}

func newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <container/name>...",
		Short: "Delete objects",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runRm,
	}
}

func newStatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <container[/name]>",
		Short: "Show container or object details",
		Args:  cobra.ExactArgs(1),
		RunE:  runStat,
	}
}

func newMetaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "meta",
		Short: "Manage container and object metadata",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <container[/name]> key=value...",
		Short: "Replace the metadata of a container or object",
		Long:  "Replace the user metadata of a container or object. Keys not listed are removed.",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runMetaSet,
	})

	return cmd
}

// splitTarget splits "container/name" into its parts. name is empty when
// the argument names only a container.
func splitTarget(arg string) (container, name string) {
	arg = strings.TrimPrefix(arg, "/")
	container, name, _ = strings.Cut(arg, "/")

	return container, name
}

// requireObject splits arg and fails unless it names an object.
func requireObject(arg string) (container, name string, err error) {
	container, name = splitTarget(arg)
	if container == "" || name == "" {
		return "", "", fmt.Errorf("%w: %q must be container/name", errUsage, arg)
	}

	return container, name, nil
}

// parseMetaArgs turns key=value arguments into a metadata map.
func parseMetaArgs(args []string) (map[string]string, error) {
	meta := make(map[string]string, len(args))

	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("%w: metadata %q must be key=value", errUsage, a)
		}

		meta[k] = v
	}

	return meta, nil
}

// lsEntry is the JSON output schema for a single entry in ls output.
type lsEntry struct {
	Name         string     `json:"name"`
	Bytes        int64      `json:"bytes"`
	Count        *int64     `json:"count,omitempty"`
	ContentType  string     `json:"content_type,omitempty"`
	LastModified *time.Time `json:"last_modified,omitempty"`
}

func runLs(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	limit, _ := cmd.Flags().GetInt("limit")
	marker, _ := cmd.Flags().GetString("marker")
	long, _ := cmd.Flags().GetBool("long")
	all, _ := cmd.Flags().GetBool("all")

	var container, prefix string
	if len(args) > 0 {
		container, prefix = splitTarget(args[0])
	}

	params := cloudfiles.ListParams{Limit: limit, Marker: marker, Prefix: prefix}

	cc.Logger.Debug("ls", "container", container, "prefix", prefix, "limit", limit)

	return withConnection(ctx, cc, func(conn *cloudfiles.Connection) error {
		var (
			entries []lsEntry
			err     error
		)

		if container == "" {
			entries, err = listContainers(ctx, conn, params, long || cc.Flags.JSON)
		} else {
			entries, err = listObjects(ctx, conn, container, params, all, long || cc.Flags.JSON)
		}

		if err != nil {
			return err
		}

		if cc.Flags.JSON {
			return printJSON(cc.Stdout, entries)
		}

		printEntries(cc.Stdout, entries, long, container == "")

		return nil
	})
}

func listContainers(
	ctx context.Context, conn *cloudfiles.Connection, params cloudfiles.ListParams, details bool,
) ([]lsEntry, error) {
	names, err := conn.GetContainers(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("listing containers: %w", err)
	}

	entries := make([]lsEntry, 0, len(names))

	for _, name := range names {
		e := lsEntry{Name: name}

		if details {
			info, err := conn.GetContainerInformation(ctx, name)
			if err != nil {
				return nil, fmt.Errorf("reading container %q: %w", name, err)
			}

			e.Bytes = info.BytesUsed
			e.Count = &info.ObjectCount
		}

		entries = append(entries, e)
	}

	return entries, nil
}

func listObjects(
	ctx context.Context, conn *cloudfiles.Connection, container string,
	params cloudfiles.ListParams, includeFolders, details bool,
) ([]lsEntry, error) {
	names, err := conn.GetContainerItemList(ctx, container, params, includeFolders)
	if err != nil {
		return nil, fmt.Errorf("listing %q: %w", container, err)
	}

	entries := make([]lsEntry, 0, len(names))

	for _, name := range names {
		e := lsEntry{Name: name}

		if details {
			item, err := conn.GetStorageItemInformation(ctx, container, name)
			if err != nil {
				return nil, fmt.Errorf("reading %s/%s: %w", container, name, err)
			}

			e.Bytes = item.ContentLength
			e.ContentType = item.ContentType
			e.LastModified = &item.LastModified
		}

		entries = append(entries, e)
	}

	return entries, nil
}

func printEntries(w io.Writer, entries []lsEntry, long, containers bool) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	if !long {
		for i := range entries {
			fmt.Fprintln(w, entries[i].Name)
		}

		return
	}

	if containers {
		rows := make([][]string, 0, len(entries))
		for i := range entries {
			rows = append(rows, []string{entries[i].Name, fmt.Sprint(*entries[i].Count), formatSize(entries[i].Bytes)})
		}

		printTable(w, []string{"NAME", "OBJECTS", "SIZE"}, rows)

		return
	}

	rows := make([][]string, 0, len(entries))
	for i := range entries {
		rows = append(rows, []string{
			entries[i].Name, formatSize(entries[i].Bytes), formatTime(*entries[i].LastModified), entries[i].ContentType,
		})
	}

	printTable(w, []string{"NAME", "SIZE", "MODIFIED", "TYPE"}, rows)
}

func runMkdir(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	parents, _ := cmd.Flags().GetBool("parents")
	meta, _ := cmd.Flags().GetStringToString("meta")
	container, dir := splitTarget(args[0])

	return withConnection(ctx, cc, func(conn *cloudfiles.Connection) error {
		err := conn.CreateContainer(ctx, container, meta)

		switch {
		case errors.Is(err, cloudfiles.ErrContainerAlreadyExists) && (parents || dir != ""):
			cc.Logger.Debug("container already exists", "container", container)
		case err != nil:
			return fmt.Errorf("creating container %q: %w", container, err)
		default:
			cc.Statusf("Created container %s\n", container)
		}

		if dir == "" {
			return nil
		}

		if err := conn.MakePath(ctx, container, dir); err != nil {
			return fmt.Errorf("creating %s/%s: %w", container, dir, err)
		}

		cc.Statusf("Created %s/%s\n", container, strings.Trim(dir, "/"))

		return nil
	})
}

func runRmdir(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	force, _ := cmd.Flags().GetBool("force")
	container, name := splitTarget(args[0])

	if name != "" {
		return fmt.Errorf("%w: rmdir takes a container, not an object path", errUsage)
	}

	return withConnection(ctx, cc, func(conn *cloudfiles.Connection) error {
		if err := conn.DeleteContainer(ctx, container, force); err != nil {
			if errors.Is(err, cloudfiles.ErrContainerNotEmpty) {
				return fmt.Errorf("container %q is not empty (use --force to delete its objects): %w", container, err)
			}

			return fmt.Errorf("deleting container %q: %w", container, err)
		}

		cc.Statusf("Deleted container %s\n", container)

		return nil
	})
}

func runPut(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	localPath := args[0]
	container, name := splitTarget(args[1])

	if container == "" {
		return fmt.Errorf("%w: missing container in %q", errUsage, args[1])
	}

	contentType, _ := cmd.Flags().GetString("content-type")
	meta, _ := cmd.Flags().GetStringToString("meta")

	opts := cloudfiles.PutOptions{ContentType: contentType, Metadata: meta}

	if localPath == "-" {
		if name == "" {
			return fmt.Errorf("%w: uploading stdin needs an object name", errUsage)
		}

		cc.Logger.Debug("put", "source", "stdin", "container", container, "name", name)

		return withConnection(ctx, cc, func(conn *cloudfiles.Connection) error {
			if err := conn.PutStorageItem(ctx, container, name, cc.Stdin, opts); err != nil {
				return fmt.Errorf("uploading to %s/%s: %w", container, name, err)
			}

			cc.Statusf("Uploaded %s/%s\n", container, name)

			return nil
		})
	}

	info, err := os.Stat(localPath)
	if err != nil {
		return err
	}

	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", errUsage, localPath)
	}

	if name == "" || strings.HasSuffix(name, "/") {
		name += filepath.Base(localPath)
	}

	opts.Progress = cc.transferBar("uploading "+filepath.Base(localPath), info.Size())

	cc.Logger.Debug("put", "local", localPath, "container", container, "name", name, "size", info.Size())

	return withConnection(ctx, cc, func(conn *cloudfiles.Connection) error {
		start := time.Now()

		if err := conn.PutStorageItemFile(ctx, container, localPath, name, opts); err != nil {
			return fmt.Errorf("uploading %s: %w", localPath, err)
		}

		cc.Logger.Info("upload complete", "container", container, "name", name,
			"size", info.Size(), "duration", time.Since(start))
		cc.Statusf("Uploaded %s to %s/%s (%s)\n", localPath, container, name, formatSize(info.Size()))

		return nil
	})
}

// getHeaders collects the conditional and range flags of the get command.
func getHeaders(cmd *cobra.Command) map[cloudfiles.RequestHeader]string {
	flags := []struct {
		name   string
		header cloudfiles.RequestHeader
	}{
		{"if-match", cloudfiles.IfMatch},
		{"if-none-match", cloudfiles.IfNoneMatch},
		{"if-modified-since", cloudfiles.IfModifiedSince},
		{"if-unmodified-since", cloudfiles.IfUnmodifiedSince},
		{"range", cloudfiles.Range},
	}

	headers := make(map[cloudfiles.RequestHeader]string)

	for _, f := range flags {
		if v, _ := cmd.Flags().GetString(f.name); v != "" {
			headers[f.header] = v
		}
	}

	return headers
}

func runGet(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	container, name, err := requireObject(args[0])
	if err != nil {
		return err
	}

	localPath := path.Base(name)
	if len(args) > 1 {
		localPath = args[1]
	}

	opts := cloudfiles.GetOptions{Headers: getHeaders(cmd)}

	cc.Logger.Debug("get", "container", container, "name", name, "local", localPath)

	return withConnection(ctx, cc, func(conn *cloudfiles.Connection) error {
		if localPath == "-" {
			item, err := conn.GetStorageItem(ctx, container, name, opts)
			if err != nil {
				return describeGetError(container, name, err)
			}

			_, err = io.Copy(cc.Stdout, item.Content)

			return err
		}

		if fi, err := os.Stat(localPath); err == nil && fi.IsDir() {
			localPath = filepath.Join(localPath, path.Base(name))
		}

		opts.Progress = cc.transferBar("downloading "+path.Base(name), 0)

		if err := conn.GetStorageItemToFile(ctx, container, name, localPath, opts); err != nil {
			return describeGetError(container, name, err)
		}

		cc.Statusf("Downloaded %s/%s to %s\n", container, name, localPath)

		return nil
	})
}

// describeGetError adds context to a failed download. A failed precondition
// or 304 means the local copy is current, which is reported but is still an
// error so scripts can branch on the exit code.
func describeGetError(container, name string, err error) error {
	var apiErr *cloudfiles.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotModified {
		return fmt.Errorf("%s/%s not modified: %w", container, name, err)
	}

	return fmt.Errorf("downloading %s/%s: %w", container, name, err)
}

func runRm(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	type target struct{ container, name string }

	targets := make([]target, 0, len(args))

	for _, a := range args {
		c, n, err := requireObject(a)
		if err != nil {
			return err
		}

		targets = append(targets, target{c, n})
	}

	return withConnection(ctx, cc, func(conn *cloudfiles.Connection) error {
		var errs []error

		for _, t := range targets {
			if err := conn.DeleteStorageItem(ctx, t.container, t.name); err != nil {
				errs = append(errs, fmt.Errorf("deleting %s/%s: %w", t.container, t.name, err))
				continue
			}

			cc.Statusf("Deleted %s/%s\n", t.container, t.name)
		}

		return errors.Join(errs...)
	})
}

// statOutput is the JSON output schema for stat.
type statOutput struct {
	Container    string            `json:"container"`
	Name         string            `json:"name,omitempty"`
	Bytes        int64             `json:"bytes"`
	ObjectCount  *int64            `json:"object_count,omitempty"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	LastModified *time.Time        `json:"last_modified,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

func runStat(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()
	container, name := splitTarget(args[0])

	return withConnection(ctx, cc, func(conn *cloudfiles.Connection) error {
		out := statOutput{Container: container, Name: name}

		if name == "" {
			info, err := conn.GetContainerInformation(ctx, container)
			if err != nil {
				return fmt.Errorf("stat %q: %w", container, err)
			}

			out.Bytes = info.BytesUsed
			out.ObjectCount = &info.ObjectCount
			out.Metadata = info.Metadata
		} else {
			item, err := conn.GetStorageItemInformation(ctx, container, name)
			if err != nil {
				return fmt.Errorf("stat %s/%s: %w", container, name, err)
			}

			out.Bytes = item.ContentLength
			out.ContentType = item.ContentType
			out.ETag = item.ETag
			out.LastModified = &item.LastModified
			out.Metadata = item.Metadata
		}

		if cc.Flags.JSON {
			return printJSON(cc.Stdout, out)
		}

		printStatText(cc.Stdout, &out)

		return nil
	})
}

func printStatText(w io.Writer, out *statOutput) {
	fmt.Fprintf(w, "Container: %s\n", out.Container)

	if out.Name != "" {
		fmt.Fprintf(w, "Name:      %s\n", out.Name)
	}

	fmt.Fprintf(w, "Size:      %s (%d bytes)\n", formatSize(out.Bytes), out.Bytes)

	if out.ObjectCount != nil {
		fmt.Fprintf(w, "Objects:   %d\n", *out.ObjectCount)
	}

	if out.ContentType != "" {
		fmt.Fprintf(w, "Type:      %s\n", out.ContentType)
	}

	if out.ETag != "" {
		fmt.Fprintf(w, "ETag:      %s\n", out.ETag)
	}

	if out.LastModified != nil && !out.LastModified.IsZero() {
		fmt.Fprintf(w, "Modified:  %s\n", out.LastModified.Format(time.RFC3339))
	}

	keys := make([]string, 0, len(out.Metadata))
	for k := range out.Metadata {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	for _, k := range keys {
		fmt.Fprintf(w, "Meta:      %s=%s\n", k, out.Metadata[k])
	}
}

func runMetaSet(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()
	container, name := splitTarget(args[0])

	meta, err := parseMetaArgs(args[1:])
	if err != nil {
		return err
	}

	return withConnection(ctx, cc, func(conn *cloudfiles.Connection) error {
		if name == "" {
			if err := conn.SetContainerMetadata(ctx, container, meta); err != nil {
				return fmt.Errorf("setting metadata on %q: %w", container, err)
			}
		} else if err := conn.SetStorageItemMetaInformation(ctx, container, name, meta); err != nil {
			return fmt.Errorf("setting metadata on %s/%s: %w", container, name, err)
		}

		cc.Statusf("Updated metadata on %s\n", strings.TrimPrefix(args[0], "/"))

		return nil
	})
}
