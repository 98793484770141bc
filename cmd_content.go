package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/kaiwa/internal/content"
)

var (
	watchContent bool

	contentCmd = &cobra.Command{
		Use:   "content",
		Short: "Manage scenes and phrase groups",
		Long:  paragraph(fmt.Sprintf("\nList, import and export the %s used by drills. Files in the content directory are merged over the built-in library.", keyword("scenes and phrase groups"))),
	}

	contentListCmd = &cobra.Command{
		Use:     "list [QUERY]",
		Short:   "List scenes and phrase groups",
		Example: paragraph("kaiwa content list\nkaiwa content list cafe\nkaiwa content list --watch"),
		Args:    cobra.MaximumNArgs(1),
		RunE:    contentList,
	}

	contentImportCmd = &cobra.Command{
		Use:     "import FILE",
		Short:   "Copy a YAML, CSV or XLSX file into the content directory",
		Example: paragraph("kaiwa content import scenes.csv\nkaiwa content import phrases.xlsx"),
		Args:    cobra.ExactArgs(1),
		RunE:    contentImport,
	}

	contentExportCmd = &cobra.Command{
		Use:   "export FILE.xlsx",
		Short: "Write every phrase group to a spreadsheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := loadLibrary()
			if err != nil {
				return err
			}
			if err := content.WritePhrasesXLSX(args[0], lib.Groups); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d phrase group(s) to %s\n", len(lib.Groups), args[0])
			return nil
		},
	}
)

func contentList(cmd *cobra.Command, args []string) error {
	var query string
	if len(args) == 1 {
		query = args[0]
	}
	lib, err := loadLibrary()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	writeLibrary(out, lib, query)
	if !watchContent {
		return nil
	}

	dir, err := contentDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("unable to create content dir: %w", err)
	}
	w, err := content.WatchDir(dir, func(lib content.Library) {
		fmt.Fprintln(out)
		writeLibrary(out, lib, query)
	}, log.Default().WithPrefix("content"))
	if err != nil {
		return err
	}
	defer w.Close() //nolint:errcheck

	<-cmd.Context().Done()
	return nil
}

func writeLibrary(w io.Writer, lib content.Library, query string) {
	scenes := lib.FindScenes(query)
	groups := lib.FindGroups(query)
	if len(scenes)+len(groups) == 0 {
		fmt.Fprintln(w, "No matches.")
		return
	}
	if len(scenes) > 0 {
		fmt.Fprintln(w, keyword("Scenes"))
		for _, m := range scenes {
			fmt.Fprintf(w, "  %-24s %s\n", m.ID, m.Title)
		}
	}
	if len(groups) > 0 {
		fmt.Fprintln(w, keyword("Phrase groups"))
		for _, m := range groups {
			fmt.Fprintf(w, "  %-24s %s\n", m.ID, m.Title)
		}
	}
}

func contentImport(cmd *cobra.Command, args []string) error {
	src := args[0]
	if !content.Supported(src) {
		return fmt.Errorf("'%s' is not a supported content file: use .yml, .yaml, .csv or .xlsx", filepath.Ext(src))
	}
	lib, err := content.LoadFile(src)
	if err != nil {
		return err
	}
	if err := lib.Validate(); err != nil {
		return err
	}

	dir, err := contentDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("unable to create content dir: %w", err)
	}
	dst := filepath.Join(dir, filepath.Base(src))
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("%s already exists, remove it first", dst)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("unable to stat file: %w", err)
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}

	var parts []string
	if n := len(lib.Scenes); n > 0 {
		parts = append(parts, fmt.Sprintf("%d scene(s)", n))
	}
	if n := len(lib.Groups); n > 0 {
		parts = append(parts, fmt.Sprintf("%d phrase group(s)", n))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %s to %s\n", strings.Join(parts, " and "), dst)
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close() //nolint:errcheck

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("unable to create file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("unable to copy file: %w", err)
	}
	return out.Close()
}

func init() {
	contentListCmd.Flags().BoolVar(&watchContent, "watch", false, "reprint the list when the content directory changes")
	contentCmd.AddCommand(contentListCmd, contentImportCmd, contentExportCmd)
}
