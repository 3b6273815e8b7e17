package main

import (
	"log"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/shimizu42/transcendence-sub000/internal/game"
	"github.com/shimizu42/transcendence-sub000/internal/server"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	if err := godotenv.Load(); err == nil {
		log.Printf("Loaded configuration from .env")
	}

	var sink server.ResultSink = server.LogSink{}
	if url := os.Getenv("NATS_URL"); url != "" {
		ns, err := server.NewNATSSink(url)
		if err != nil {
			log.Fatalf("NATS connect failed: %v", err)
		}
		defer ns.Close()
		sink = ns
		log.Printf("Publishing match results to %s", url)
	}

	presence := server.NewPresence()
	pong := server.NewPongEngine(server.NewStore[*game.PongSession](), presence, sink)
	tank := server.NewTankEngine(server.NewStore[*game.TankSession](), presence, sink)
	matchmaking := server.NewMatchmaking(pong, tank)
	tournaments := server.NewTournaments(pong, tank)
	gateway := server.NewGateway(presence, pong, tank, matchmaking, tournaments)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", gateway.Handler())

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Server starting on :%s", port)
	log.Printf("WebSocket endpoint: ws://localhost:%s/ws", port)
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		log.Fatal("Server error:", err)
	}
}
