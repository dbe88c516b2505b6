// Command indyforge-devpool serves an in-memory ledger over the pool gRPC
// service so the CLI and HTTP API can be exercised without validator nodes.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"

	"google.golang.org/grpc"

	"indyforge.dev/forge/did"
	"indyforge.dev/forge/pool/grpcpool"
	"indyforge.dev/forge/pool/pooltest"
)

func main() {
	fs := flag.NewFlagSet("indyforge-devpool", flag.ExitOnError)
	listen := fs.String("listen", "127.0.0.1:9700", "listen address")
	trustees := fs.String("trustee-seeds", "000000000000000000000000Trustee1", "comma-separated seeds whose V1 and V2 DIDs the ledger trusts")
	printGenesis := fs.Bool("print-genesis", false, "Print a genesis file matching this pool and exit")
	_ = fs.Parse(os.Args[1:])

	if *printGenesis {
		_, _ = fmt.Fprint(os.Stdout, pooltest.Genesis)
		return
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ledger := pooltest.New()
	for _, seed := range strings.Split(*trustees, ",") {
		seed = strings.TrimSpace(seed)
		if seed == "" {
			continue
		}
		for _, v := range []did.Version{did.V1, did.V2} {
			id, err := did.Create([]byte(seed), v)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(2)
			}
			ledger.Register(id.DID(), id.Verkey())
			log.Info("trusting DID", "did", id.DID(), "version", int(v))
			id.Destroy()
		}
	}

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer lis.Close()

	srv := &grpcpool.Server{Builder: ledger, Logger: log}
	defer srv.Shutdown()
	s := grpc.NewServer()
	grpcpool.RegisterPoolServer(s, srv)

	fmt.Fprintf(os.Stderr, "indyforge-devpool listening on %s\n", lis.Addr().String())
	if err := s.Serve(lis); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
