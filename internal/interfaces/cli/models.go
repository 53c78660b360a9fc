package cli

import (
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/molbayes/internal/infrastructure/storage/minio"
)

// NewModelsCmd creates the models command for the configured model store.
func NewModelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Manage models in the configured model store",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			objs, err := cliCtx.Service.List(cmd.Context())
			if err != nil {
				return err
			}
			sort.Slice(objs, func(i, j int) bool { return objs[i].LastModified.After(objs[j].LastModified) })
			return PrintResult(cmd, modelList(objs))
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <model-id>...",
		Short: "Delete stored models",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			for _, id := range args {
				if err := cliCtx.Service.Delete(cmd.Context(), id); err != nil {
					return err
				}
				PrintSuccess(cmd, "deleted "+id)
			}
			return nil
		},
	}

	cmd.AddCommand(listCmd, deleteCmd)
	return cmd
}

type modelList []*minio.ModelObject

func (l modelList) TableHeaders() []string {
	return []string{"ID", "Kind", "Training", "Validation", "AUC", "Size", "Modified"}
}

func (l modelList) TableRows() [][]string {
	rows := make([][]string, len(l))
	for i, o := range l {
		rows[i] = []string{
			o.ID,
			o.Metadata["kind"],
			o.Metadata["training-size"],
			o.Metadata["validation"],
			o.Metadata["auc"],
			strconv.FormatInt(o.Size, 10),
			o.LastModified.Format(time.RFC3339),
		}
	}
	return rows
}
