package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/yoockh/meetsense/config"
	"github.com/yoockh/meetsense/internal/app"
	mongorepo "github.com/yoockh/meetsense/internal/repositories/mongo"
	"github.com/yoockh/meetsense/internal/storage"
	"github.com/yoockh/meetsense/internal/utils"
)

func NewExportCmd(deps *Dependencies) *cobra.Command {
	var (
		rf     reportFlags
		upload bool
	)

	cmd := &cobra.Command{
		Use:   "export <session-id>",
		Short: "Export a stored session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := NewFormatter(cmd.ErrOrStderr())
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			if err := config.InitMongo(deps.Config.Mongo); err != nil {
				return fmt.Errorf("mongo: %w", err)
			}
			defer config.MongoClient.Disconnect(context.Background())

			sess, err := mongorepo.NewSessionRepo(config.MongoDB).GetBySessionID(ctx, args[0])
			if errors.Is(err, utils.ErrNotFound) {
				return fmt.Errorf("session %s not found", args[0])
			}
			if err != nil {
				return err
			}

			rep, dest, err := rf.writeReport(cmd, sess, time.Now())
			if err != nil {
				return err
			}
			if dest != "-" {
				f.ReportWritten(dest, len(rep.Data), len(sess.Transcript), len(sess.Participants))
			}

			if !upload {
				return nil
			}
			up, closeFn, err := app.NewUploader(ctx, deps.Config.Storage)
			if err != nil {
				return err
			}
			if up == nil {
				return errors.New("--upload needs a storage provider (STORAGE_PROVIDER=gcs|s3)")
			}
			if closeFn != nil {
				defer closeFn()
			}
			object := storage.ReportObject(sess.SessionID, rep.Filename)
			stored, err := up.Upload(ctx, object, rep.MIMEType, bytes.NewReader(rep.Data))
			if err != nil {
				return err
			}
			f.Success("archived to " + stored)
			if signer, ok := up.(storage.Signer); ok {
				if link, err := signer.SignedGetURL(ctx, object, deps.Config.Storage.LinkTTL); err == nil {
					f.Info("download: " + link)
				} else {
					f.Warning("could not sign download link: " + err.Error())
				}
			}
			return nil
		},
	}

	rf.register(cmd)
	cmd.Flags().BoolVar(&upload, "upload", false, "also archive the report to the configured storage")
	return cmd
}
