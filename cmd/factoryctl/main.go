package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/edvin/accountfactory/internal/model"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "create":
		cmdCreate(os.Args[2:])
	case "status":
		cmdStatus(os.Args[2:])
	case "check-name":
		cmdCheckName(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: factoryctl <command> [flags]

Commands:
  create      Submit an account provisioning request
  status      Show the state of a provisioning run
  check-name  Check whether an execution name is free

The API endpoint is taken from FACTORY_API_URL (default http://localhost:8090).`)
}

func apiURL() string {
	if v := os.Getenv("FACTORY_API_URL"); v != "" {
		return strings.TrimSuffix(v, "/")
	}
	return "http://localhost:8090"
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

func cmdCreate(args []string) {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	name := fs.String("name", "", "Account name")
	email := fs.String("email", "", "Account root email (optional, derived when empty)")
	supportDL := fs.String("support-dl", "", "Support distribution list")
	orgUnit := fs.String("ou", "", "Managed organizational unit")
	force := fs.Bool("force-update", false, "Overwrite an existing target-state entry")
	bypass := fs.Bool("bypass-creation", false, "Skip target-state merge and deployment")
	file := fs.String("file", "", "Read the full request from a JSON file instead of flags")
	fs.Parse(args)

	var body []byte
	if *file != "" {
		data, err := os.ReadFile(*file)
		if err != nil {
			fatal(err)
		}
		body = data
	} else {
		if *name == "" || *supportDL == "" || *orgUnit == "" {
			fmt.Fprintln(os.Stderr, "Usage: factoryctl create -name NAME -support-dl DL -ou OU [-email EMAIL] [-force-update] [-bypass-creation]")
			os.Exit(1)
		}
		req := model.ProvisionRequest{
			AccountName:    *name,
			AccountEmail:   *email,
			SupportDL:      *supportDL,
			ManagedOrgUnit: *orgUnit,
			ForceUpdate:    *force,
			BypassCreation: *bypass,
		}
		data, err := json.Marshal(req)
		if err != nil {
			fatal(err)
		}
		body = data
	}

	resp, err := httpClient().Post(apiURL()+"/api/v1/accounts", "application/json", bytes.NewReader(body))
	if err != nil {
		fatal(err)
	}
	defer resp.Body.Close()
	printResponse(resp)
}

func cmdStatus(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: factoryctl status <execution-id>")
		os.Exit(1)
	}
	resp, err := httpClient().Get(apiURL() + "/api/v1/executions/" + args[0])
	if err != nil {
		fatal(err)
	}
	defer resp.Body.Close()
	printResponse(resp)
}

func cmdCheckName(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: factoryctl check-name <name>")
		os.Exit(1)
	}
	resp, err := httpClient().Get(apiURL() + "/api/v1/accounts/" + args[0] + "/availability")
	if err != nil {
		fatal(err)
	}
	defer resp.Body.Close()
	printResponse(resp)
}

func printResponse(resp *http.Response) {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		fatal(err)
	}

	var pretty bytes.Buffer
	if json.Indent(&pretty, data, "", "  ") == nil {
		data = pretty.Bytes()
	}
	fmt.Println(string(data))

	if resp.StatusCode >= 300 {
		os.Exit(1)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
