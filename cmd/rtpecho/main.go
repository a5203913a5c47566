// Command rtpecho starts two RTP sessions over loopback UDP, has one
// send a few data packets to the other, and logs what each side
// observes: received payloads and participant events such as
// SDES-derived info updates. RTCP reports are not logged.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/mgodave/efflux/pkg/rtp"
)

func main() {
	payloadType := flag.Uint("pt", 0, "RTP payload type to negotiate")
	packets := flag.Int("packets", 5, "number of data packets to send")
	flag.Parse()

	alice := newSession("alice", uint8(*payloadType))
	bob := newSession("bob", uint8(*payloadType))

	if !alice.Init() {
		log.Fatal("alice: init failed")
	}
	defer alice.Terminate()
	if !bob.Init() {
		log.Fatal("bob: init failed")
	}
	defer bob.Terminate()

	bobAsSeenByAlice := rtp.NewRemoteParticipant(bob.LocalSsrc(), bob.LocalDataAddr(), bob.LocalControlAddr())
	alice.AddReceiver(bobAsSeenByAlice)

	aliceAsSeenByBob := rtp.NewRemoteParticipant(alice.LocalSsrc(), alice.LocalDataAddr(), alice.LocalControlAddr())
	bob.AddReceiver(aliceAsSeenByBob)

	bob.AddDataListener(loggingDataListener{name: "bob"})
	bob.AddEventListener(loggingEventListener{name: "bob"})
	alice.AddEventListener(loggingEventListener{name: "alice"})

	for i := 0; i < *packets; i++ {
		payload := []byte(fmt.Sprintf("packet-%d", i))
		if !alice.SendData(payload, uint32(i*160), i == *packets-1) {
			log.Printf("alice: send %d failed", i)
		}
		time.Sleep(50 * time.Millisecond)
	}

	time.Sleep(500 * time.Millisecond)
}

func newSession(name string, payloadType uint8) *rtp.Session {
	cfg := rtp.DefaultSessionConfig(name, payloadType)
	cfg.LocalDataAddr = "127.0.0.1:0"
	cfg.LocalControlAddr = "127.0.0.1:0"
	cfg.LocalInfo = rtp.ParticipantInfo{CNAME: name + "@localhost"}

	logger := rtp.NewLogger(nil)
	sess, err := rtp.NewSession(cfg, nil, nil, logger, nil)
	if err != nil {
		log.Fatalf("%s: configure session: %v", name, err)
	}
	return sess
}

type loggingDataListener struct{ name string }

func (l loggingDataListener) DataPacketReceived(_ *rtp.Session, source rtp.ParticipantInfo, packet *rtp.DataPacket) {
	log.Printf("%s: received %q from ssrc=%#x seq=%d", l.name, packet.Payload, source.SSRC, packet.SequenceNumber)
}

type loggingEventListener struct{ name string }

func (l loggingEventListener) ParticipantJoinedFromData(_ *rtp.Session, p *rtp.Participant) {
	log.Printf("%s: participant %#x joined via data", l.name, p.Info.SSRC)
}

func (l loggingEventListener) ParticipantJoinedFromControl(_ *rtp.Session, p *rtp.Participant) {
	log.Printf("%s: participant %#x joined via control", l.name, p.Info.SSRC)
}

func (l loggingEventListener) ParticipantDataUpdated(_ *rtp.Session, p *rtp.Participant) {
	log.Printf("%s: participant %#x updated cname=%s", l.name, p.Info.SSRC, p.Snapshot().Info.CNAME)
}

func (l loggingEventListener) ParticipantLeft(_ *rtp.Session, p *rtp.Participant) {
	log.Printf("%s: participant %#x left", l.name, p.Info.SSRC)
}

func (l loggingEventListener) ParticipantDeleted(_ *rtp.Session, p *rtp.Participant) {
	log.Printf("%s: participant %#x evicted", l.name, p.Info.SSRC)
}

func (l loggingEventListener) ResolvedSsrcConflict(_ *rtp.Session, oldSsrc, newSsrc uint32) {
	log.Printf("%s: resolved ssrc conflict %#x -> %#x", l.name, oldSsrc, newSsrc)
}

func (l loggingEventListener) SessionTerminated(_ *rtp.Session, cause error) {
	log.Printf("%s: session terminated, cause=%v", l.name, cause)
}
