package cli

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"studio/internal/imagegen"
	"studio/internal/storage"
)

type outputFlags struct {
	dir  string
	name string
}

func (o *outputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.dir, "out-dir", "d", ".", "Directory the generated image is written to")
	cmd.Flags().StringVarP(&o.name, "output", "o", storage.DefaultImageName, "File name of the generated image")
}

func newGenerateCommand(e *env) *cobra.Command {
	var out outputFlags
	cmd := &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Create an image from a text prompt",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.run(cmd, imagegen.ModeText, strings.Join(args, " "), nil, out)
		},
	}
	out.register(cmd)
	return cmd
}

func newEditCommand(e *env) *cobra.Command {
	var (
		out   outputFlags
		image string
	)
	cmd := &cobra.Command{
		Use:   "edit -i <image> <prompt>",
		Short: "Edit one image following a prompt",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			att, err := fileAttachment(image)
			if err != nil {
				return err
			}
			return e.run(cmd, imagegen.ModeEdit, strings.Join(args, " "), []imagegen.Attachment{att}, out)
		},
	}
	cmd.Flags().StringVarP(&image, "image", "i", "", "Image to edit")
	_ = cmd.MarkFlagRequired("image")
	out.register(cmd)
	return cmd
}

func newComposeCommand(e *env) *cobra.Command {
	var (
		out    outputFlags
		images []string
	)
	cmd := &cobra.Command{
		Use:   "compose -i <image> -i <image> [-i <image>] <prompt>",
		Short: "Combine two or more images following a prompt",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			atts := make([]imagegen.Attachment, 0, len(images))
			for _, path := range images {
				att, err := fileAttachment(path)
				if err != nil {
					return err
				}
				atts = append(atts, att)
			}
			return e.run(cmd, imagegen.ModeCompose, strings.Join(args, " "), atts, out)
		},
	}
	cmd.Flags().StringArrayVarP(&images, "image", "i", nil, "Image to combine, in order (repeatable)")
	out.register(cmd)
	return cmd
}

// run executes one generation and saves the image. Classified failures are
// printed as "<title>: <message>" and returned so the process exits non-zero.
func (e *env) run(cmd *cobra.Command, mode imagegen.Mode, prompt string, atts []imagegen.Attachment, out outputFlags) error {
	res := e.runner.Run(cmd.Context(), mode, prompt, atts)
	if res.Err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", res.Err.Kind.Title(), res.Err.Message)
		return res.Err
	}

	dir, err := storage.NewImageDir(out.dir)
	if err != nil {
		return err
	}
	path, err := dir.SaveDataURI(cmd.Context(), out.name, res.DataURI)
	if err != nil {
		return err
	}
	e.logger.Debug().Str("mode", string(mode)).Str("path", path).Msg("cli: image saved")
	fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", path)
	return nil
}

// fileAttachment reads path lazily. The MIME type is sniffed from content.
func fileAttachment(path string) (imagegen.Attachment, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return imagegen.Attachment{}, errors.New("image path is required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return imagegen.Attachment{}, fmt.Errorf("image %s: %w", path, err)
	}
	if info.IsDir() {
		return imagegen.Attachment{}, fmt.Errorf("image %s: is a directory", path)
	}
	mimeType, err := detectFileType(path)
	if err != nil {
		return imagegen.Attachment{}, err
	}
	return imagegen.Attachment{
		Name:     filepath.Base(path),
		MIMEType: mimeType,
		Size:     info.Size(),
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}

func detectFileType(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("image %s: %w", path, err)
	}
	defer f.Close()
	buf := make([]byte, 512)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("image %s: %w", path, err)
	}
	return http.DetectContentType(buf[:n]), nil
}
