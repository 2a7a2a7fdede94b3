package cli

import (
	"context"
	"slices"

	"github.com/hatlonely/ormx/cfg"
	"github.com/hatlonely/ormx/rdb/orm"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// RootOptions 全部子命令共享的参数
type RootOptions struct {
	// 配置文件，内容为 orm.OrmOptions
	Config string
	// 输出格式：text, json
	Format string
}

var ValidFormats = []string{"text", "json"}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "ormctl",
		Short:         "查看和查询配置文件中声明的表",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return errors.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.Config == "" {
				return errors.New("--config is required")
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "config file (yaml|toml|json|ini)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewColumnsCommand(opts))
	cmd.AddCommand(NewCountCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewFindCommand(opts))
	cmd.AddCommand(NewClearCacheCommand(opts))

	return cmd
}

// openOrm 按配置文件创建 Orm，调用方负责关闭
func openOrm(ctx context.Context, opts *RootOptions) (*orm.Orm, error) {
	var options orm.OrmOptions
	if err := cfg.LoadInto(opts.Config, &options); err != nil {
		return nil, errors.WithMessagef(err, "load config %s failed", opts.Config)
	}
	o, err := orm.NewOrmWithOptions(&options)
	if err != nil {
		return nil, err
	}
	if err := o.Load(ctx); err != nil {
		_ = o.Close()
		return nil, err
	}
	return o, nil
}

// withOrm 打开 Orm 执行 fn 后关闭
func withOrm(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, o *orm.Orm, out *Formatter) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	o, err := openOrm(ctx, opts)
	if err != nil {
		return err
	}
	defer o.Close()
	return fn(ctx, o, &Formatter{Format: opts.Format, Writer: cmd.OutOrStdout()})
}
