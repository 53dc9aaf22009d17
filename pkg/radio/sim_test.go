package radio

import (
	"math"
	"testing"
	"time"
)

func TestSimClockAlignsOnPPS(t *testing.T) {
	dev, err := NewSimDevice(map[string]string{"pps_period": "20ms"})
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()

	if err := dev.SetTimeNextPPS(0); err != nil {
		t.Fatalf("SetTimeNextPPS: %v", err)
	}
	// Let the armed edge pass, then the clock must read near zero.
	time.Sleep(25 * time.Millisecond)
	now := dev.TimeNow().Seconds()
	if now < 0 || now > 0.1 {
		t.Errorf("device time %.4f s after PPS zeroing, want near 0", now)
	}
	if last := dev.TimeLastPPS().Seconds(); last > now {
		t.Errorf("last PPS %.4f s ahead of now %.4f s", last, now)
	}
}

func TestSimNoPPSReference(t *testing.T) {
	dev, err := NewSimDevice(map[string]string{"pps": "off"})
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()

	if err := dev.SetTimeNextPPS(0); err == nil {
		t.Error("SetTimeNextPPS succeeded without a PPS reference")
	}
	a := dev.TimeLastPPS()
	time.Sleep(10 * time.Millisecond)
	if b := dev.TimeLastPPS(); b != a {
		t.Error("PPS edge advanced with the reference off")
	}
}

func TestSimLockSensorsFollowTune(t *testing.T) {
	dev, err := NewSimDevice(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()

	if v, ok := dev.TxSensor(0, "lo_locked"); !ok || v.Bool {
		t.Fatalf("before tune: sensor = %+v, %v; want present and unlocked", v, ok)
	}
	if err := dev.TuneAt(dev.TimeNow(), map[int]float64{0: 915e6}, map[int]float64{1: 915e6}); err != nil {
		t.Fatalf("TuneAt: %v", err)
	}
	if v, _ := dev.TxSensor(0, "lo_locked"); !v.Bool {
		t.Error("TX LO not locked after the tune time passed")
	}
	if v, _ := dev.RxSensor(1, "lo_locked"); !v.Bool {
		t.Error("RX LO not locked after the tune time passed")
	}
	if _, ok := dev.TxSensor(0, "temperature"); ok {
		t.Error("unknown sensor reported as present")
	}
}

func TestSimTxCaptureAndBurst(t *testing.T) {
	dev, err := NewSimDevice(map[string]string{"tx_max_send": "30"})
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()

	stream, err := dev.OpenTxStream([]int{0})
	if err != nil {
		t.Fatalf("OpenTxStream: %v", err)
	}
	defer stream.Close()

	buf := make([]complex64, 100)
	for i := range buf {
		buf[i] = complex(float32(i), 0)
	}

	sent := 0
	md := TxMetadata{HasTimeSpec: true}
	for sent < len(buf) {
		n, err := stream.Send([][]complex64{buf[sent:]}, len(buf)-sent, md, time.Second)
		if err != nil {
			t.Fatalf("Send: %v", err)
		}
		if n > 30 {
			t.Fatalf("Send consumed %d samples, cap is 30", n)
		}
		sent += n
		md.HasTimeSpec = false
	}
	if _, err := stream.Send(nil, 0, TxMetadata{EndOfBurst: true}, time.Second); err != nil {
		t.Fatalf("end of burst: %v", err)
	}

	cap0 := dev.Captured()[0]
	if len(cap0) != 100 {
		t.Fatalf("captured %d samples, want 100", len(cap0))
	}
	for i, s := range cap0 {
		if s != buf[i] {
			t.Fatalf("captured sample %d = %v, want %v", i, s, buf[i])
		}
	}
	if !dev.BurstClosed() {
		t.Error("burst not marked closed")
	}
}

func TestSimRxTimedStart(t *testing.T) {
	dev, err := NewSimDevice(map[string]string{"pps_period": "20ms"})
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()

	stream, err := dev.OpenRxStream([]int{0, 1})
	if err != nil {
		t.Fatalf("OpenRxStream: %v", err)
	}
	defer stream.Close()

	start := dev.TimeNow().Add(50 * time.Millisecond)
	if err := stream.Issue(StreamCmd{NumSamps: 200, TimeSpec: start}); err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// A timeout shorter than the wait to the start instant must report a
	// timeout, not samples.
	buffs := [][]complex64{make([]complex64, 200), make([]complex64, 200)}
	n, md := stream.Recv(buffs, 200, 5*time.Millisecond)
	if n != 0 || md.Code != RxErrorTimeout {
		t.Fatalf("early recv returned %d samples, code %s; want timeout", n, md.Code)
	}

	got := 0
	for got < 200 {
		n, md := stream.Recv([][]complex64{buffs[0][got:], buffs[1][got:]}, 200-got, time.Second)
		if md.Code != RxErrorNone {
			t.Fatalf("recv code %s (%s)", md.Code, md.Desc)
		}
		got += n
	}

	// The tone has constant magnitude; a flat zero buffer means the DDS
	// never ran.
	mag := math.Hypot(float64(real(buffs[0][0])), float64(imag(buffs[0][0])))
	if math.Abs(mag-0.5) > 1e-3 {
		t.Errorf("sample magnitude %.4f, want 0.5", mag)
	}

	// Exhausted stream reports timeouts from then on.
	if n, md := stream.Recv(buffs, 10, time.Millisecond); n != 0 || md.Code != RxErrorTimeout {
		t.Errorf("post-exhaustion recv returned %d, code %s; want timeout", n, md.Code)
	}
}

func TestSimRecvWithoutCommand(t *testing.T) {
	dev, err := NewSimDevice(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()

	stream, err := dev.OpenRxStream([]int{0})
	if err != nil {
		t.Fatal(err)
	}
	defer stream.Close()

	buffs := [][]complex64{make([]complex64, 8)}
	if n, md := stream.Recv(buffs, 8, time.Millisecond); n != 0 || md.Code == RxErrorNone {
		t.Errorf("recv before Issue returned %d samples, code %s", n, md.Code)
	}
}
