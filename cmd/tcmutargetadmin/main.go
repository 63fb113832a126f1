// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tcmutarget/pkg/api"
	"tcmutarget/pkg/config"
)

// requestTimeout covers a lifecycle change the daemon applies on its loop.
const requestTimeout = time.Minute

var (
	socketPath string

	deviceConfig string
	deviceSize   string
	blockSize    uint32

	dataOut          string
	allocationLength uint32
)

var rootCmd = &cobra.Command{
	Use:           "tcmutargetadmin",
	Short:         "A tool to communicate with the tcmutarget daemon",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func client() *api.ClientRequester {
	return api.NewApiRequester(socketPath)
}

var attachCmd = &cobra.Command{
	Use:   "attach NAME",
	Short: "Create a device, open its backing store and start serving it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		size, err := config.ParseSize(deviceSize)
		if err != nil {
			return err
		}
		response, err := client().Attach(cmd.Context(), api.AttachRequest{
			Name:      args[0],
			Config:    deviceConfig,
			Size:      uint64(size),
			BlockSize: blockSize,
		})
		if err != nil {
			return err
		}
		fmt.Print(response.ToCmdlineOutput())
		return nil
	},
}

var detachCmd = &cobra.Command{
	Use:   "detach NAME",
	Short: "Stop serving a device and release its backing store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		response, err := client().Detach(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Println(response.ToCmdlineOutput())
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List served devices in attach order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		response, err := client().List(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Print(response.ToCmdlineOutput())
		return nil
	},
}

// parseHex accepts "12 00 00", "120000" and "12:00:00".
func parseHex(text string) ([]byte, error) {
	cleaned := strings.NewReplacer(" ", "", ":", "", "\t", "").Replace(text)
	data, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("bad hex string '%s': %w", text, err)
	}
	return data, nil
}

var execCmd = &cobra.Command{
	Use:   "exec NAME CDB",
	Short: "Run a single SCSI command, the CDB is given in hex",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cdb, err := parseHex(args[1])
		if err != nil {
			return err
		}
		var payload []byte
		if dataOut != "" {
			if payload, err = parseHex(dataOut); err != nil {
				return err
			}
		}
		response, err := client().Execute(cmd.Context(), api.ExecuteRequest{
			Name:             args[0],
			CDB:              cdb,
			DataOut:          payload,
			AllocationLength: allocationLength,
		})
		if err != nil {
			return err
		}
		fmt.Print(response.ToCmdlineOutput())
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&socketPath, "socket", "s", config.DefaultSocketPath, "Control socket of the daemon")

	attachCmd.Flags().StringVarP(&deviceConfig, "config", "c", "file/", "Device config, <subtype>/<path>")
	attachCmd.Flags().StringVar(&deviceSize, "size", "", "Device size in bytes, K, M, G and T suffixes are accepted")
	attachCmd.Flags().Uint32Var(&blockSize, "block-size", config.DefaultBlockSize, "Logical block size in bytes")
	_ = attachCmd.MarkFlagRequired("size")

	execCmd.Flags().StringVar(&dataOut, "data", "", "Data out payload in hex")
	execCmd.Flags().Uint32Var(&allocationLength, "allocation-length", 0, "Bytes of data in to return")

	rootCmd.AddCommand(attachCmd, detachCmd, listCmd, execCmd)
}

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	err := rootCmd.ExecuteContext(ctx)
	cancel()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
