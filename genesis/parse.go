package genesis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"

	"indyforge.dev/forge/forgeerr"
)

const nodeTxnType = "0"

// Node is the pool membership data carried by one NODE transaction.
type Node struct {
	Alias      string   `json:"alias"`
	Dest       string   `json:"dest"`
	ClientIP   string   `json:"client_ip,omitempty"`
	ClientPort int      `json:"client_port,omitempty"`
	NodeIP     string   `json:"node_ip,omitempty"`
	NodePort   int      `json:"node_port,omitempty"`
	Services   []string `json:"services,omitempty"`
	BLSKey     string   `json:"blskey,omitempty"`
	BLSKeyPoP  string   `json:"blskey_pop,omitempty"`
	From       string   `json:"from,omitempty"`
}

// IsValidator reports whether the node participates in consensus.
func (n Node) IsValidator() bool { return slices.Contains(n.Services, "VALIDATOR") }

// Transaction is one parsed genesis line.
type Transaction struct {
	SeqNo int
	Node  Node

	raw []byte
}

// Transactions is an ordered set of pool bootstrap transactions.
type Transactions []Transaction

// Validators returns the nodes whose services include VALIDATOR, in order.
func (ts Transactions) Validators() []Node {
	var out []Node
	for _, t := range ts {
		if t.Node.IsValidator() {
			out = append(out, t.Node)
		}
	}
	return out
}

// Bytes re-emits the transactions as compact newline-delimited JSON.
func (ts Transactions) Bytes() []byte {
	var buf bytes.Buffer
	for _, t := range ts {
		buf.Write(t.raw)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

type nodeData struct {
	Alias      string   `json:"alias"`
	ClientIP   string   `json:"client_ip"`
	ClientPort int      `json:"client_port"`
	NodeIP     string   `json:"node_ip"`
	NodePort   int      `json:"node_port"`
	Services   []string `json:"services"`
	BLSKey     string   `json:"blskey"`
	BLSKeyPoP  string   `json:"blskey_pop"`
}

type currentTxn struct {
	Data struct {
		Data nodeData `json:"data"`
		Dest string   `json:"dest"`
	} `json:"data"`
	Metadata struct {
		From string `json:"from"`
	} `json:"metadata"`
	Type string `json:"type"`
}

// record accepts both the current layout (everything under "txn") and the
// legacy flat layout.
type record struct {
	Txn         *currentTxn `json:"txn"`
	TxnMetadata struct {
		SeqNo int `json:"seqNo"`
	} `json:"txnMetadata"`

	Data       *nodeData `json:"data"`
	Dest       string    `json:"dest"`
	Type       string    `json:"type"`
	Identifier string    `json:"identifier"`
}

// Parse decodes newline-delimited genesis transactions. Blank lines are
// skipped. Every other line must be a NODE transaction with an alias and a
// destination.
func Parse(data []byte) (Transactions, error) {
	var out Transactions
	for i, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		t, err := parseLine(line, len(out)+1)
		if err != nil {
			return nil, forgeerr.Wrap(forgeerr.KindConfig, forgeerr.ParseError,
				fmt.Sprintf("Failed to parse genesis transactions - invalid format (line %d)", i+1), err)
		}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil, forgeerr.New(forgeerr.KindConfig, forgeerr.ParseError, "genesis contains no transactions")
	}
	return out, nil
}

func parseLine(line []byte, ordinal int) (Transaction, error) {
	var r record
	if err := json.Unmarshal(line, &r); err != nil {
		return Transaction{}, err
	}

	var (
		txType string
		nd     nodeData
		n      Node
	)
	switch {
	case r.Txn != nil:
		txType = r.Txn.Type
		nd = r.Txn.Data.Data
		n.Dest = r.Txn.Data.Dest
		n.From = r.Txn.Metadata.From
	case r.Data != nil:
		txType = r.Type
		nd = *r.Data
		n.Dest = r.Dest
		n.From = r.Identifier
	default:
		return Transaction{}, fmt.Errorf("missing transaction data")
	}
	if txType != nodeTxnType {
		return Transaction{}, fmt.Errorf("unexpected transaction type %q, want NODE (%s)", txType, nodeTxnType)
	}
	if nd.Alias == "" {
		return Transaction{}, fmt.Errorf("node alias is required")
	}
	if n.Dest == "" {
		return Transaction{}, fmt.Errorf("node %q: dest is required", nd.Alias)
	}

	n.Alias = nd.Alias
	n.ClientIP, n.ClientPort = nd.ClientIP, nd.ClientPort
	n.NodeIP, n.NodePort = nd.NodeIP, nd.NodePort
	n.Services = nd.Services
	n.BLSKey, n.BLSKeyPoP = nd.BLSKey, nd.BLSKeyPoP

	seq := r.TxnMetadata.SeqNo
	if seq == 0 {
		seq = ordinal
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, line); err != nil {
		return Transaction{}, err
	}
	return Transaction{SeqNo: seq, Node: n, raw: compact.Bytes()}, nil
}
