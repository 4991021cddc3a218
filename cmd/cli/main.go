package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "auth":
		handleAuth(args)
	case "document":
		handleDocument(args)
	case "sweep":
		handleSweep(args)
	case "webhook":
		handleWebhook(args)
	case "onboard":
		handleOnboard(args)
	case "compliance":
		handleCompliance(args)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func handleAuth(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: formwatch auth <register|login|logout|who>")
		return
	}

	switch args[0] {
	case "register":
		registerClient(args[1:])
	case "login":
		loginClient(args[1:])
	case "logout":
		os.Remove(tokenFile())
		fmt.Println("✓ Logged out")
	case "who":
		whoAmI()
	default:
		fmt.Printf("unknown auth command: %s\n", args[0])
	}
}

func handleDocument(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: formwatch document <list|get|status|refresh>")
		return
	}

	switch args[0] {
	case "list":
		listDocuments(args[1:])
	case "get":
		documentOp(args[1:], "get")
	case "status":
		documentOp(args[1:], "status")
	case "refresh":
		documentOp(args[1:], "refresh")
	default:
		fmt.Printf("unknown document command: %s\n", args[0])
	}
}

func handleSweep(args []string) {
	if len(args) < 2 || args[0] != "run" {
		fmt.Println("Usage: formwatch sweep run <daily|monthly|quarterly|annual>")
		return
	}

	req, _ := http.NewRequest("POST", getAPIURL()+"/sweeps/"+args[1], nil)
	addAuthHeader(req)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	var result map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&result)
	if resp.StatusCode == http.StatusAccepted {
		fmt.Printf("✓ %s sweep triggered\n", args[1])
	} else {
		fmt.Printf("✗ Failed (%d): %v\n", resp.StatusCode, result)
	}
}

func handleWebhook(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: formwatch webhook <list|add|rm>")
		return
	}

	switch args[0] {
	case "list":
		listWebhooks()
	case "add":
		addWebhook(args[1:])
	case "rm":
		removeWebhook(args[1:])
	default:
		fmt.Printf("unknown webhook command: %s\n", args[0])
	}
}

func handleOnboard(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: formwatch onboard <company|employee>")
		return
	}

	switch args[0] {
	case "company":
		onboardCompany(args[1:])
	case "employee":
		onboardEmployee(args[1:])
	default:
		fmt.Printf("unknown onboard command: %s\n", args[0])
	}
}

func handleCompliance(args []string) {
	if len(args) < 2 {
		fmt.Println("Usage: formwatch compliance <company|employee> <id>")
		return
	}

	kind := args[0]
	if kind != "company" && kind != "employee" {
		fmt.Printf("unknown compliance owner: %s\n", kind)
		return
	}

	req, _ := http.NewRequest("GET", getAPIURL()+"/compliance/"+kind+"/"+args[1], nil)
	addAuthHeader(req)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	printJSONResponse(resp, http.StatusOK)
}

// Auth commands
func registerClient(args []string) {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	email := fs.String("email", "", "client email")
	password := fs.String("password", "", "password")
	tier := fs.String("tier", "free", "tier (free, pro, enterprise)")
	jurisdictions := fs.String("jurisdictions", "", "comma-separated state codes, or *")

	fs.Parse(args)

	if *email == "" || *password == "" {
		fmt.Println("Error: email and password are required")
		fs.PrintDefaults()
		return
	}

	payload := map[string]interface{}{
		"email":    *email,
		"password": *password,
		"tier":     *tier,
	}
	if *jurisdictions != "" {
		payload["jurisdictions"] = strings.Split(*jurisdictions, ",")
	}

	data, _ := json.Marshal(payload)
	resp, err := http.Post(getAPIURL()+"/auth/register", "application/json", bytes.NewReader(data))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	var result map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&result)
	if resp.StatusCode == http.StatusCreated {
		fmt.Printf("✓ Client registered: %s\n", *email)
		if token, ok := result["token"].(string); ok {
			saveToken(token)
		}
	} else {
		fmt.Printf("✗ Registration failed: %v\n", result)
	}
}

func loginClient(args []string) {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "client email")
	password := fs.String("password", "", "password")

	fs.Parse(args)

	if *email == "" || *password == "" {
		fmt.Println("Error: email and password are required")
		fs.PrintDefaults()
		return
	}

	payload := map[string]string{"email": *email, "password": *password}
	data, _ := json.Marshal(payload)
	resp, err := http.Post(getAPIURL()+"/auth/login", "application/json", bytes.NewReader(data))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	var result map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&result)
	if resp.StatusCode == http.StatusOK {
		if token, ok := result["token"].(string); ok {
			saveToken(token)
			fmt.Printf("✓ Logged in as: %s\n", *email)
		}
	} else {
		fmt.Printf("✗ Login failed: %v\n", result)
	}
}

func whoAmI() {
	token := loadToken()
	if token == "" {
		fmt.Println("Not logged in")
		return
	}
	fmt.Printf("✓ Logged in (token: %s...)\n", token[:20])
}

// Document commands
func listDocuments(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	formType := fs.String("type", "", "filter by form type")
	jurisdiction := fs.String("jurisdiction", "", "filter by jurisdiction")
	fs.Parse(args)

	q := url.Values{}
	if *formType != "" {
		q.Set("formType", *formType)
	}
	if *jurisdiction != "" {
		q.Set("jurisdiction", *jurisdiction)
	}

	target := getAPIURL() + "/documents"
	if len(q) > 0 {
		target += "?" + q.Encode()
	}

	resp, err := http.Get(target)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	var result struct {
		Documents []map[string]interface{} `json:"documents"`
	}
	json.NewDecoder(resp.Body).Decode(&result)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FORM\tJURISDICTION\tAGENCY\tVERSION\tLAST CHECKED")
	for _, d := range result.Documents {
		fmt.Fprintf(w, "%v\t%v\t%v\t%v\t%v\n",
			d["formId"], d["jurisdiction"], d["agency"], d["currentVersion"], d["lastChecked"])
	}
	w.Flush()
}

func documentOp(args []string, op string) {
	fs := flag.NewFlagSet(op, flag.ExitOnError)
	form := fs.String("form", "", "form ID, e.g. W-4")
	jurisdiction := fs.String("jurisdiction", "federal", "jurisdiction code")
	agency := fs.String("agency", "irs", "agency code")
	fs.Parse(args)

	if *form == "" {
		fmt.Println("Error: -form is required")
		fs.PrintDefaults()
		return
	}

	q := url.Values{}
	q.Set("jurisdiction", *jurisdiction)
	q.Set("agency", *agency)

	target := getAPIURL() + "/documents/" + url.PathEscape(*form)
	method := "GET"
	wantStatus := http.StatusOK
	switch op {
	case "status":
		target += "/status"
	case "refresh":
		target += "/refresh"
		method = "POST"
	}
	target += "?" + q.Encode()

	req, _ := http.NewRequest(method, target, nil)
	addAuthHeader(req)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	printJSONResponse(resp, wantStatus)
}

// Webhook commands
func listWebhooks() {
	req, _ := http.NewRequest("GET", getAPIURL()+"/webhooks", nil)
	addAuthHeader(req)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	var result struct {
		Webhooks []map[string]interface{} `json:"webhooks"`
	}
	json.NewDecoder(resp.Body).Decode(&result)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tURL\tEVENTS")
	for _, s := range result.Webhooks {
		fmt.Fprintf(w, "%v\t%v\t%v\n", s["id"], s["url"], s["events"])
	}
	w.Flush()
}

func addWebhook(args []string) {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	target := fs.String("url", "", "delivery endpoint")
	events := fs.String("events", "*", "comma-separated event names")
	secret := fs.String("secret", "", "HMAC signing secret")
	fs.Parse(args)

	if *target == "" || *secret == "" {
		fmt.Println("Error: -url and -secret are required")
		fs.PrintDefaults()
		return
	}

	payload := map[string]interface{}{
		"url":    *target,
		"events": strings.Split(*events, ","),
		"secret": *secret,
	}
	data, _ := json.Marshal(payload)

	req, _ := http.NewRequest("POST", getAPIURL()+"/webhooks", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	addAuthHeader(req)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	printJSONResponse(resp, http.StatusCreated)
}

func removeWebhook(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: formwatch webhook rm <webhook-id>")
		return
	}

	req, _ := http.NewRequest("DELETE", getAPIURL()+"/webhooks/"+args[0], nil)
	addAuthHeader(req)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		fmt.Println("✓ Webhook removed")
	} else {
		fmt.Printf("✗ Failed (%d)\n", resp.StatusCode)
	}
}

// Onboarding commands
func onboardCompany(args []string) {
	fs := flag.NewFlagSet("company", flag.ExitOnError)
	name := fs.String("name", "", "company name")
	jurisdiction := fs.String("jurisdiction", "", "state code, e.g. CA")
	size := fs.Int("size", 1, "company size")
	hasEmployees := fs.Bool("employees", true, "company has employees")
	foreign := fs.Bool("foreign-workers", false, "company has foreign workers")
	fs.Parse(args)

	if *name == "" || *jurisdiction == "" {
		fmt.Println("Error: -name and -jurisdiction are required")
		fs.PrintDefaults()
		return
	}

	payload := map[string]interface{}{
		"name":              *name,
		"jurisdiction":      *jurisdiction,
		"companySize":       *size,
		"hasEmployees":      *hasEmployees,
		"hasForeignWorkers": *foreign,
	}
	postOnboarding("/onboarding/company", payload)
}

func onboardEmployee(args []string) {
	fs := flag.NewFlagSet("employee", flag.ExitOnError)
	company := fs.String("company", "", "company ID")
	jurisdiction := fs.String("jurisdiction", "", "state code")
	workerType := fs.String("worker-type", "w2", "worker type (w2, contractor)")
	foreign := fs.Bool("foreign", false, "foreign worker")
	fs.Parse(args)

	if *company == "" || *jurisdiction == "" {
		fmt.Println("Error: -company and -jurisdiction are required")
		fs.PrintDefaults()
		return
	}

	payload := map[string]interface{}{
		"companyId":       *company,
		"jurisdiction":    *jurisdiction,
		"workerType":      *workerType,
		"isForeignWorker": *foreign,
	}
	postOnboarding("/onboarding/employee", payload)
}

func postOnboarding(path string, payload map[string]interface{}) {
	data, _ := json.Marshal(payload)
	req, _ := http.NewRequest("POST", getAPIURL()+path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	addAuthHeader(req)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	printJSONResponse(resp, http.StatusCreated)
}

// Helper functions
func printJSONResponse(resp *http.Response, wantStatus int) {
	var result interface{}
	json.NewDecoder(resp.Body).Decode(&result)
	pretty, _ := json.MarshalIndent(result, "", "  ")
	if resp.StatusCode == wantStatus {
		fmt.Println(string(pretty))
	} else {
		fmt.Printf("✗ Failed (%d): %s\n", resp.StatusCode, pretty)
	}
}

func getAPIURL() string {
	if u := os.Getenv("FORMWATCH_API"); u != "" {
		return u
	}
	return "http://localhost:8080/api"
}

func tokenFile() string {
	home, _ := os.UserHomeDir()
	return home + "/.formwatch/token"
}

func saveToken(token string) error {
	home, _ := os.UserHomeDir()
	os.MkdirAll(home+"/.formwatch", 0700)
	return os.WriteFile(tokenFile(), []byte(token), 0600)
}

func loadToken() string {
	data, _ := os.ReadFile(tokenFile())
	return string(data)
}

func addAuthHeader(req *http.Request) {
	token := loadToken()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func printUsage() {
	fmt.Print(`FormWatch CLI

Usage:
  formwatch <command> [options]

Commands:
  auth        Client authentication (register, login, logout, who)
  document    Document operations (list, get, status, refresh)
  sweep       Trigger a sweep out of schedule (run <class>)
  webhook     Webhook subscriptions (list, add, rm)
  onboard     Onboard a company or employee profile
  compliance  Show compliance for a company or employee
  help        Show this help message

Environment Variables:
  FORMWATCH_API    API endpoint (default: http://localhost:8080/api)

Examples:
  formwatch auth register -email ops@example.com -password secret123 -tier pro
  formwatch document status -form W-4 -jurisdiction federal -agency irs
  formwatch document refresh -form DE-4 -jurisdiction CA -agency edd
  formwatch sweep run daily
  formwatch webhook add -url https://example.com/hook -secret s3cr3t -events document.changed
  formwatch onboard company -name Acme -jurisdiction CA -size 10
`)
}
