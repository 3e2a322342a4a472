package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

var rpcEndpoint = defaultRPCEndpoint()
var rpcAuthToken = os.Getenv("MARKET_RPC_TOKEN")

func defaultRPCEndpoint() string {
	if url := strings.TrimSpace(os.Getenv("RPC_URL")); url != "" {
		return url
	}
	return "http://localhost:8080"
}

func main() {
	args := os.Args[1:]
	args = applyGlobalFlags(args)

	if len(args) < 1 {
		printUsage()
		return
	}

	command := args[0]
	switch command {
	case "register":
		if len(args) < 3 {
			fmt.Println("Usage: register <address> <user|marketplace>")
			return
		}
		call("identity_register", map[string]string{"address": args[1], "role": args[2]})
	case "profile":
		if len(args) < 2 {
			fmt.Println("Usage: profile <address>")
			return
		}
		call("identity_getProfile", map[string]string{"address": args[1]})
	case "accounts":
		call("identity_listAccounts", nil)
	case "create-offer":
		if len(args) < 4 {
			fmt.Println("Usage: create-offer <seller> <item> <price> [description...]")
			return
		}
		params := map[string]string{"seller": args[1], "item": args[2], "price": args[3]}
		if len(args) > 4 {
			params["description"] = strings.Join(args[4:], " ")
		}
		call("market_createOffer", params)
	case "delete-offer":
		if len(args) < 3 {
			fmt.Println("Usage: delete-offer <id> <seller>")
			return
		}
		call("market_deleteOffer", offerAction(args[1], args[2]))
	case "accept-offer":
		if len(args) < 3 {
			fmt.Println("Usage: accept-offer <id> <buyer>")
			return
		}
		call("market_acceptOffer", offerAction(args[1], args[2]))
	case "offers":
		call("market_listOffers", nil)
	case "accepted-offers":
		call("market_listAcceptedOffers", nil)
	case "info":
		call("market_info", nil)
	case "initiate":
		if len(args) < 5 {
			fmt.Println("Usage: initiate <marketplace> <buyer> <seller> <offerId>")
			return
		}
		call("escrow_initiate", map[string]interface{}{
			"marketplace": args[1], "buyer": args[2], "seller": args[3], "offerId": parseID(args[4]),
		})
	case "confirm-shipping":
		if len(args) < 4 {
			fmt.Println("Usage: confirm-shipping <id> <marketplace> <phase2DurationSeconds>")
			return
		}
		duration, err := strconv.ParseInt(args[3], 10, 64)
		if err != nil {
			fmt.Println("Error: invalid duration.")
			return
		}
		call("escrow_confirmShipping", map[string]interface{}{
			"id": parseID(args[1]), "caller": args[2], "phase2Duration": duration,
		})
	case "update-delivery":
		if len(args) < 4 {
			fmt.Println("Usage: update-delivery <id> <marketplace> <shipped|missing_data|delivery_problem>")
			return
		}
		call("escrow_updateDelivery", map[string]interface{}{
			"id": parseID(args[1]), "caller": args[2], "deliveryState": args[3],
		})
	case "confirm-delivery":
		if len(args) < 3 {
			fmt.Println("Usage: confirm-delivery <id> <marketplace>")
			return
		}
		call("escrow_confirmDelivery", txAction(args[1], args[2]))
	case "rate":
		if len(args) < 5 {
			fmt.Println("Usage: rate <id> <rater> <participantRating> <marketplaceRating> [review...]")
			return
		}
		participant, err1 := strconv.ParseUint(args[3], 10, 8)
		marketplace, err2 := strconv.ParseUint(args[4], 10, 8)
		if err1 != nil || err2 != nil {
			fmt.Println("Error: ratings must be integers between 1 and 5.")
			return
		}
		params := map[string]interface{}{
			"id": parseID(args[1]), "rater": args[2],
			"participantRating": participant, "marketplaceRating": marketplace,
		}
		if len(args) > 5 {
			params["review"] = strings.Join(args[5:], " ")
		}
		call("escrow_submitRating", params)
	case "finalize":
		if len(args) < 3 {
			fmt.Println("Usage: finalize <id> <marketplace>")
			return
		}
		call("escrow_finalize", txAction(args[1], args[2]))
	case "cancel":
		if len(args) < 3 {
			fmt.Println("Usage: cancel <id> <marketplace>")
			return
		}
		call("escrow_cancel", txAction(args[1], args[2]))
	case "tx":
		if len(args) < 2 {
			fmt.Println("Usage: tx <id>")
			return
		}
		call("escrow_getTransaction", map[string]interface{}{"id": parseID(args[1])})
	case "phase":
		if len(args) < 2 {
			fmt.Println("Usage: phase <id>")
			return
		}
		call("escrow_getPhase", map[string]interface{}{"id": parseID(args[1])})
	case "txs":
		if len(args) < 2 {
			fmt.Println("Usage: txs <address>")
			return
		}
		call("escrow_listTransactions", map[string]string{"address": args[1]})
	case "score":
		if len(args) < 2 {
			fmt.Println("Usage: score <address>")
			return
		}
		call("reputation_getScore", map[string]string{"address": args[1]})
	case "reviews":
		if len(args) < 2 {
			fmt.Println("Usage: reviews <address>")
			return
		}
		call("reputation_listReviews", map[string]string{"address": args[1]})
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func applyGlobalFlags(args []string) []string {
	out := args[:0]
	for i := 0; i < len(args); i++ {
		if args[i] == "--rpc" && i+1 < len(args) {
			rpcEndpoint = args[i+1]
			i++
			continue
		}
		out = append(out, args[i])
	}
	return out
}

func offerAction(id, caller string) map[string]interface{} {
	return map[string]interface{}{"id": parseID(id), "caller": caller}
}

func txAction(id, caller string) map[string]interface{} {
	return map[string]interface{}{"id": parseID(id), "caller": caller}
}

func parseID(raw string) uint64 {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		fmt.Printf("Error: invalid id %q\n", raw)
		os.Exit(1)
	}
	return id
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int         `json:"code"`
		Message string      `json:"message"`
		Data    interface{} `json:"data"`
	} `json:"error"`
}

func call(method string, params interface{}) {
	req := rpcRequest{JSONRPC: "2.0", Method: method, ID: 1}
	if params != nil {
		req.Params = []interface{}{params}
	}
	body, err := json.Marshal(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	httpReq, err := http.NewRequest(http.MethodPost, rpcEndpoint, bytes.NewReader(body))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if rpcAuthToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+rpcAuthToken)
	}

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: could not reach node at %s: %v\n", rpcEndpoint, err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid response: %v\n", err)
		os.Exit(1)
	}
	if decoded.Error != nil {
		fmt.Fprintf(os.Stderr, "Error: %s", decoded.Error.Message)
		if decoded.Error.Data != nil {
			fmt.Fprintf(os.Stderr, " (%v)", decoded.Error.Data)
		}
		fmt.Fprintln(os.Stderr)
		os.Exit(1)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, decoded.Result, "", "  "); err != nil {
		fmt.Println(string(decoded.Result))
		return
	}
	fmt.Println(pretty.String())
}

func printUsage() {
	fmt.Println("Usage: market-cli [--rpc <url>] <command> [args]")
	fmt.Println()
	fmt.Println("Identity:")
	fmt.Println("  register <address> <user|marketplace>")
	fmt.Println("  profile <address>")
	fmt.Println("  accounts")
	fmt.Println()
	fmt.Println("Offers:")
	fmt.Println("  create-offer <seller> <item> <price> [description...]")
	fmt.Println("  delete-offer <id> <seller>")
	fmt.Println("  accept-offer <id> <buyer>")
	fmt.Println("  offers | accepted-offers | info")
	fmt.Println()
	fmt.Println("Transactions:")
	fmt.Println("  initiate <marketplace> <buyer> <seller> <offerId>")
	fmt.Println("  confirm-shipping <id> <marketplace> <phase2DurationSeconds>")
	fmt.Println("  update-delivery <id> <marketplace> <shipped|missing_data|delivery_problem>")
	fmt.Println("  confirm-delivery <id> <marketplace>")
	fmt.Println("  rate <id> <rater> <participantRating> <marketplaceRating> [review...]")
	fmt.Println("  finalize <id> <marketplace>")
	fmt.Println("  cancel <id> <marketplace>")
	fmt.Println("  tx <id> | phase <id> | txs <address>")
	fmt.Println()
	fmt.Println("Reputation:")
	fmt.Println("  score <address>")
	fmt.Println("  reviews <address>")
	fmt.Println()
	fmt.Println("The MARKET_RPC_TOKEN environment variable supplies the bearer token for mutations.")
}
