package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"testing"
	"time"
)

func TestMailboxCountsUnreadDrops(t *testing.T) {
	var mb mailbox
	mb.publish(&Frame{Seq: 1})
	mb.publish(&Frame{Seq: 2})
	if got := mb.dropped.Load(); got != 1 {
		t.Fatalf("dropped = %d, want 1", got)
	}
	if f := mb.take(); f.Seq != 2 {
		t.Fatalf("latest seq = %d, want 2", f.Seq)
	}
	mb.publish(&Frame{Seq: 3})
	if got := mb.dropped.Load(); got != 1 {
		t.Fatalf("dropped after read = %d, want 1", got)
	}
}

func TestSyntheticStream(t *testing.T) {
	src := &SyntheticSource{}
	h, err := src.RequestStream(context.Background(), Constraints{Width: 16, Height: 8, FrameRate: 50})
	if err != nil {
		t.Fatal(err)
	}
	f := h.Latest()
	if f == nil {
		t.Fatal("expected a frame immediately")
	}
	if f.Width != 16 || f.Height != 8 || len(f.Data) != 16*8*4 {
		t.Fatalf("frame = %dx%d len %d", f.Width, f.Height, len(f.Data))
	}
	img := f.Image()
	if img.Bounds().Dx() != 16 || img.RGBAAt(0, 0).A != 255 {
		t.Fatalf("unexpected image %v", img.Bounds())
	}
	if err := h.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := h.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestSyntheticDeny(t *testing.T) {
	_, err := (&SyntheticSource{Deny: true}).RequestStream(context.Background(), Constraints{})
	if !errors.Is(err, ErrDeviceAccess) {
		t.Fatalf("err = %v, want ErrDeviceAccess", err)
	}
}

func TestConstraintsDefaults(t *testing.T) {
	c := Constraints{Audio: true}.WithDefaults()
	if c.Width != 1280 || c.Height != 720 || c.FrameRate != 30 || !c.Audio {
		t.Fatalf("defaults = %+v", c)
	}
}

func TestDeviceLockExclusive(t *testing.T) {
	dir := t.TempDir()
	a := NewDeviceLock(dir, "/dev/video0")
	b := NewDeviceLock(dir, "/dev/video0")
	if err := a.Acquire(); err != nil {
		t.Fatal(err)
	}
	if err := b.Acquire(); !errors.Is(err, ErrDeviceAccess) {
		t.Fatalf("err = %v, want ErrDeviceAccess", err)
	}
	if err := a.Release(); err != nil {
		t.Fatal(err)
	}
	if err := b.Acquire(); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	_ = b.Release()
}

func useHelper(t *testing.T, mode string, captured *[]string) {
	t.Helper()
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		if captured != nil {
			*captured = append([]string(nil), args...)
		}
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "CAPTURE_HELPER_MODE="+mode)
		return cmd
	}
	t.Cleanup(func() { commandContext = original })
}

func TestFFmpegSourceReadsFrames(t *testing.T) {
	var args []string
	useHelper(t, "frames", &args)
	src := NewFFmpegSource("/dev/video9", t.TempDir(), nil, WithFirstFrameTimeout(5*time.Second))

	h, err := src.RequestStream(context.Background(), Constraints{Width: 4, Height: 2, FrameRate: 10})
	if err != nil {
		t.Fatalf("RequestStream: %v", err)
	}
	f := h.Latest()
	if f == nil || len(f.Data) != 4*2*4 {
		t.Fatalf("frame = %+v", f)
	}
	if findArg(args, "-video_size") == -1 || args[findArg(args, "-video_size")+1] != "4x2" {
		t.Fatalf("args = %v", args)
	}
	if err := h.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := h.Stop(); err != nil {
		t.Fatal(err)
	}
}

func TestFFmpegSourceDeviceFailure(t *testing.T) {
	useHelper(t, "fail", nil)
	src := NewFFmpegSource("/dev/video9", t.TempDir(), nil)
	_, err := src.RequestStream(context.Background(), Constraints{Width: 4, Height: 2})
	if !errors.Is(err, ErrDeviceAccess) {
		t.Fatalf("err = %v, want ErrDeviceAccess", err)
	}
}

func TestFFmpegSourceBusyDevice(t *testing.T) {
	useHelper(t, "frames", nil)
	dir := t.TempDir()
	lock := NewDeviceLock(dir, "/dev/video9")
	if err := lock.Acquire(); err != nil {
		t.Fatal(err)
	}
	defer lock.Release()

	_, err := NewFFmpegSource("/dev/video9", dir, nil).RequestStream(context.Background(), Constraints{Width: 4, Height: 2})
	if !errors.Is(err, ErrDeviceAccess) {
		t.Fatalf("err = %v, want ErrDeviceAccess", err)
	}
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	switch os.Getenv("CAPTURE_HELPER_MODE") {
	case "frames":
		frame := make([]byte, 4*2*4)
		for i := 0; i < 3; i++ {
			for j := range frame {
				frame[j] = byte(i)
			}
			_, _ = os.Stdout.Write(frame)
		}
		time.Sleep(30 * time.Second)
		os.Exit(0)
	case "fail":
		fmt.Fprintln(os.Stderr, "/dev/video9: Permission denied")
		os.Exit(1)
	default:
		os.Exit(0)
	}
}

func findArg(args []string, target string) int {
	for i, arg := range args {
		if arg == target {
			return i
		}
	}
	return -1
}

