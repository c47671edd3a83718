package kv

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	putCmd = &cobra.Command{
		Use:   "put [key] [value]",
		Short: "Writes a key/value pair",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := kvClient.Put([]byte(args[0]), []byte(args[1])); err != nil {
				return err
			}
			fmt.Println("put ok")
			return nil
		},
	}

	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, ok, err := kvClient.Get([]byte(args[0]))
			if err != nil {
				return err
			}
			fmt.Printf("key=%s found=%v value=%s\n", args[0], ok, value)
			return nil
		},
	}

	delCmd = &cobra.Command{
		Use:   "del [key]",
		Short: "Deletes a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			existed, err := kvClient.Delete([]byte(args[0]))
			if err != nil {
				return err
			}
			fmt.Printf("key=%s existed=%v\n", args[0], existed)
			return nil
		},
	}

	countCmd = &cobra.Command{
		Use:   "count",
		Short: "Prints the number of keys in the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := kvClient.Count()
			if err != nil {
				return err
			}
			fmt.Println(n)
			return nil
		},
	}

	scanCmd = &cobra.Command{
		Use:   "scan",
		Short: "Reads every key/value pair through a forward cursor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cur := kvClient.OpenCursor()
			defer cur.Close()

			for {
				entries, next, err := cur.ReadBatch()
				if err != nil {
					return err
				}
				for _, e := range entries {
					fmt.Printf("%s=%s\n", e.Key, e.Value)
				}
				if !next {
					return nil
				}
			}
		},
	}
)
