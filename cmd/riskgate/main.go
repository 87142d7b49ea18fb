// Command riskgate scores payment transactions.
//
// Usage:
//
//	riskgate serve [--port 8080] [--config rules.yaml]
//	riskgate batch [--input transactions_examples.csv] [--output decisions.csv]
//	riskgate seed  [--output transactions_examples.csv] [--count 300]
//	riskgate config
package main

import "riskgate/decision-api/internal/cli"

func main() {
	cli.Execute()
}
