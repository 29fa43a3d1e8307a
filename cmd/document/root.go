package document

import (
	"github.com/ValentinKolb/cKV/cmd/util"
	"github.com/ValentinKolb/cKV/lib/docstore"
	"github.com/ValentinKolb/cKV/rpc/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	rpcStore docstore.IDocStore

	// DocumentCommands represents the document store command group
	DocumentCommands = &cobra.Command{
		Use:   "doc",
		Short: "Perform document store operations",
		Long: `Perform document store operations on a cKV server.

Every command runs in its own transaction unless --tx is given. A transaction
started with "begin" lives on the server until "commit" or "rollback" is
called with its id, so several commands can be combined into one atomic change.`,
		PersistentPreRunE: setupDocClient,
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)

	util.SetupRPCClientFlags(DocumentCommands)

	DocumentCommands.PersistentFlags().String("tx", "", util.WrapString("ID of a transaction started with begin (default: auto commit)"))

	DocumentCommands.AddCommand(beginCmd)
	DocumentCommands.AddCommand(commitCmd)
	DocumentCommands.AddCommand(rollbackCmd)
	DocumentCommands.AddCommand(putCmd)
	DocumentCommands.AddCommand(getCmd)
	DocumentCommands.AddCommand(delCmd)
	DocumentCommands.AddCommand(rangeCmd)
	DocumentCommands.AddCommand(taggedCmd)
	DocumentCommands.AddCommand(searchCmd)
	DocumentCommands.AddCommand(historyCmd)
	DocumentCommands.AddCommand(infoCmd)
	DocumentCommands.AddCommand(perfTestCmd)
}

// setupDocClient initializes the RPC document store client
func setupDocClient(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	config := util.GetClientConfig()
	shardId := util.GetShardID()

	s, err := util.GetSerializer()
	if err != nil {
		return err
	}

	t, err := util.GetClientTransport()
	if err != nil {
		return err
	}

	rpcStore, err = client.NewRPCDocStore(
		shardId,
		*config,
		t,
		s,
	)

	return err
}

// currentTx returns the transaction selected with --tx
func currentTx() docstore.TxID {
	return docstore.TxID(viper.GetString("tx"))
}
