// Demo node for the GoLanShare library.
// Starts the full stack on one machine, announces presence on the subnet,
// prints peer and transfer events, and optionally pushes files to a peer.
//
// Receive mode:
//
//	golanshare -port 8080
//
// Send mode:
//
//	golanshare -port 8080 -to 192.168.1.42 -buffer 4096 notes.txt video.mp4
package main

import (
	"flag"
	"os"
	"os/signal"

	log "github.com/sirupsen/logrus"

	"github.com/AnshSinghSonkhia/GoLanShare/fileshare"
	"github.com/AnshSinghSonkhia/GoLanShare/objects"
	"github.com/AnshSinghSonkhia/GoLanShare/p2p"
)

func main() {
	var (
		port    = flag.Uint("port", uint(p2p.DefaultPort), "TCP and UDP port to bind")
		to      = flag.String("to", "", "peer IPv4 address to send the listed files to")
		buffer  = flag.Uint("buffer", uint(fileshare.DefaultBufferSize), "bytes per file part")
		tempDir = flag.String("temp", fileshare.DefaultTempDir, "directory for received files")
	)
	flag.Parse()

	transport := p2p.NewLANTransport(p2p.LANTransportOpts{
		Port: uint16(*port),
	})
	objClient := objects.NewClient(objects.ClientOpts{
		Transport: transport,
	})
	client := fileshare.NewClient(fileshare.ClientOpts{
		Objects: objClient,
		TempDir: *tempDir,
	})

	if err := client.Start(); err != nil {
		log.Fatalf("starting node: %v", err)
	}
	defer client.Stop()

	ip, _ := objClient.LocalIP()
	log.Printf("node up on %s:%d, receiving into %s", ip, *port, *tempDir)

	go func() {
		for {
			select {
			case pe := <-client.PeerEvents():
				log.Printf("peer %s active=%v", pe.Addr, pe.Active)
			case p := <-client.Progress():
				log.Printf("%s %s: %d/%d bytes (%.0f%%)",
					p.Direction, p.FileName, p.BytesProcessed, p.FileLength, p.Percent()*100)
			case r := <-client.Received():
				log.Printf("received %s -> %s", r.FileName, r.Path)
			}
		}
	}()

	if *to != "" {
		if flag.NArg() == 0 {
			log.Fatal("no files listed to send")
		}
		if err := client.SendFiles(*to, flag.Args(), uint32(*buffer)); err != nil {
			log.Fatalf("sending to %s: %v", *to, err)
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	<-sig
	log.Println("shutting down")
}
