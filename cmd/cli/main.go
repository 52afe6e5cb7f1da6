package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"toolgate/pkg/config"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}
	os.Exit(run(os.Args[1], os.Args[2:]))
}

func run(cmd string, args []string) int {
	switch cmd {
	case "version":
		fmt.Println("toolgate cli 0.1.0")
	case "health":
		out, err := getHealth(newClient(apiBaseURL()))
		if err != nil {
			fmt.Fprintf(os.Stderr, "health: %v\n", err)
			return 1
		}
		fmt.Printf("status=%s policy=%s\n", out["status"], out["policy"])
	case "check":
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "Usage: toolgate-cli check <session_id> <tool> [key=value ...]\n")
			return 1
		}
		res, err := checkTool(newClient(apiBaseURL()), args[0], args[1], parseArgs(args[2:]))
		if err != nil {
			fmt.Fprintf(os.Stderr, "check: %v\n", err)
			return 1
		}
		if !res.Allowed {
			fmt.Printf("denied: %s\n", res.Reason)
			return 2
		}
		fmt.Printf("allowed call_id=%s\n", res.CallID)
	case "report":
		if len(args) < 3 {
			fmt.Fprintf(os.Stderr, "Usage: toolgate-cli report <session_id> <call_id> <tool> [result]\n")
			return 1
		}
		var result any
		if len(args) > 3 {
			result = parseValue(args[3])
		}
		if err := reportTool(newClient(apiBaseURL()), args[0], args[1], args[2], result); err != nil {
			fmt.Fprintf(os.Stderr, "report: %v\n", err)
			return 1
		}
		fmt.Println("accepted")
	case "config":
		path := "configs/toolgate.yaml"
		if len(args) > 0 {
			path = args[0]
		}
		return runConfig(path)
	default:
		printUsage()
		return 1
	}
	return 0
}

func runConfig(path string) int {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		return 1
	}
	fmt.Printf("application=%s\n", cfg.Application)
	fmt.Printf("policy=%s timeout=%s\n", cfg.PolicyAddr(), cfg.PolicyTimeout())
	fmt.Printf("gate.fail_closed=%v gate.context_window=%d gate.on_context_error=%s\n",
		cfg.FailClosed(), cfg.Gate.ContextWindow, cfg.Gate.OnContextError)
	fmt.Printf("registry=%s host=%s\n", cfg.Registry.Type, cfg.Host.Type)
	fmt.Printf("api=%s:%d\n", cfg.API.Host, cfg.API.Port)
	return 0
}

// parseArgs 解析 key=value 列表；value 能按 JSON 解析时使用解析结果
func parseArgs(pairs []string) map[string]any {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			continue
		}
		out[k] = parseValue(v)
	}
	return out
}

func parseValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return s
}

func printUsage() {
	fmt.Println(`toolgate-cli - tool gate sidecar client

Usage:
  toolgate-cli version
  toolgate-cli health
  toolgate-cli check <session_id> <tool> [key=value ...]
  toolgate-cli report <session_id> <call_id> <tool> [result]
  toolgate-cli config [path]

Environment:
  TOOLGATE_API_URL   sidecar base URL (default http://127.0.0.1:4097)`)
}
