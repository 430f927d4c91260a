package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tgienger/checker/internal/mirror"
)

var customerCmd = &cobra.Command{
	Use:     "customer",
	Aliases: []string{"customers"},
	Short:   "Manage customers",
}

var customerAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Create a customer and print its id",
	Args:  cobra.ExactArgs(1),
	RunE:  runCustomerAdd,
}

var customerListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List customers",
	Args:    cobra.NoArgs,
	RunE:    runCustomerList,
}

var customerRmCmd = &cobra.Command{
	Use:   "rm ID",
	Short: "Delete a customer",
	Long:  "Delete a customer. Its projects and tasks are left in place.",
	Args:  cobra.ExactArgs(1),
	RunE:  runCustomerRm,
}

func init() {
	rootCmd.AddCommand(customerCmd)
	customerCmd.AddCommand(customerAddCmd, customerListCmd, customerRmCmd)
}

func runCustomerAdd(cmd *cobra.Command, args []string) error {
	if err := requireName("customer name", args[0]); err != nil {
		return err
	}
	e, err := openEnv(cmd, nil)
	if err != nil {
		return err
	}
	defer e.Close()
	if err := requireTeamLead(e, "create customers"); err != nil {
		return err
	}

	id, err := e.repo.CreateCustomer(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}

func runCustomerList(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd, nil)
	if err != nil {
		return err
	}
	defer e.Close()

	customers, err := mirror.Load(cmd.Context(), e.store, mirror.DecodeCustomer, mirror.CustomerParams(), e.mirrorOptions()...)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(customers) == 0 {
		fmt.Fprintln(out, "No customers found.")
		return nil
	}
	rows := make([][]string, 0, len(customers))
	for _, c := range customers {
		rows = append(rows, []string{c.ID, cell(c.Name)})
	}
	fmt.Fprint(out, formatTable([]string{"ID", "NAME"}, rows))
	return nil
}

func runCustomerRm(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd, nil)
	if err != nil {
		return err
	}
	defer e.Close()
	if err := requireTeamLead(e, "delete customers"); err != nil {
		return err
	}
	return e.repo.DeleteCustomer(cmd.Context(), args[0])
}
