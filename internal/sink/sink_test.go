package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/muurk/groundlink/internal/protocol"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPacket() *protocol.Packet {
	pkt := protocol.NewPacket("INST", "HEALTH_STATUS", []byte{0x1A, 0xCF, 'O', 'K'})
	pkt.ReceivedAt = time.Date(2026, 3, 1, 12, 0, 0, 500000000, time.UTC)
	return pkt
}

func TestNewRecord(t *testing.T) {
	rec := NewRecord("INST_INT", DirectionRead, testPacket())
	assert.Equal(t, "INST_INT", rec.Interface)
	assert.Equal(t, DirectionRead, rec.Direction)
	assert.Equal(t, "INST", rec.Target)
	assert.Equal(t, "HEALTH_STATUS", rec.Packet)
	assert.Equal(t, 4, rec.Length)
	assert.Equal(t, "1acf4f4b", rec.Hex)
	assert.Equal(t, "..OK", rec.ASCII)
	assert.Equal(t, []byte{0x1A, 0xCF, 'O', 'K'}, rec.Data())

	out := NewRecord("INST_INT", DirectionWrite, protocol.NewPacket("INST", "CMD", nil))
	assert.WithinDuration(t, time.Now(), out.Timestamp, time.Second)
}

func TestToken(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"INST", "INST"},
		{"a.b", "a_b"},
		{"wild*card>", "wild_card_"},
		{"with space", "with_space"},
		{"", "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := token(tt.in); got != tt.want {
			t.Errorf("token(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

type failingSink struct{ closed bool }

func (f *failingSink) Publish(context.Context, Record) error { return errors.New("down") }
func (f *failingSink) Close() error {
	f.closed = true
	return nil
}

func TestMulti(t *testing.T) {
	var got []Record
	ok := Func(func(ctx context.Context, rec Record) error {
		got = append(got, rec)
		return nil
	})
	bad := &failingSink{}

	m := NewMulti(bad, nil, ok, Log())
	assert.Equal(t, 3, m.Len())

	handler := m.Handler("INST_INT", DirectionRead)
	err := handler(context.Background(), testPacket())
	assert.EqualError(t, err, "down")
	require.Len(t, got, 1, "healthy sinks still receive records")
	assert.Equal(t, "INST_INT", got[0].Interface)

	require.NoError(t, m.Close())
	assert.True(t, bad.closed)
}

type fakePublisher struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (p *fakePublisher) Publish(subj string, data []byte) error {
	if p.err != nil {
		return p.err
	}
	p.subjects = append(p.subjects, subj)
	p.payloads = append(p.payloads, data)
	return nil
}

func TestNATSSink_Publish(t *testing.T) {
	pub := &fakePublisher{}
	s := NewNATSSink(pub, "")

	require.NoError(t, s.Publish(context.Background(), NewRecord("INST_INT", DirectionRead, testPacket())))
	assert.Equal(t, []string{"groundlink.tlm.INST.HEALTH_STATUS", "groundlink.tlm.all"}, pub.subjects)

	var rec Record
	require.NoError(t, json.Unmarshal(pub.payloads[0], &rec))
	assert.Equal(t, "1acf4f4b", rec.Hex)
	assert.Equal(t, DirectionRead, rec.Direction)

	pub.subjects = nil
	require.NoError(t, s.Publish(context.Background(), NewRecord("INST_INT", DirectionWrite, protocol.NewPacket("INST", "CLEAR", []byte{1}))))
	assert.Equal(t, []string{"groundlink.sent.INST.CLEAR"}, pub.subjects)
	require.NoError(t, s.Close())
}

func TestNATSSink_PublishError(t *testing.T) {
	s := NewNATSSink(&fakePublisher{err: nats.ErrConnectionClosed}, "gs")
	err := s.Publish(context.Background(), NewRecord("I", DirectionRead, testPacket()))
	assert.ErrorIs(t, err, nats.ErrConnectionClosed)
}

func TestCommandSubject(t *testing.T) {
	assert.Equal(t, "groundlink.cmd.INST_INT", CommandSubject("", "INST_INT"))
	assert.Equal(t, "gs.cmd.a_b", CommandSubject("gs", "a.b"))
}

func TestCommand_ToPacket(t *testing.T) {
	tests := []struct {
		name       string
		cmd        Command
		wantTarget string
		wantName   string
		wantData   []byte
		wantErr    bool
	}{
		{name: "defaults", cmd: Command{Hex: "1acf"}, wantTarget: "INST", wantName: "COMMAND", wantData: []byte{0x1A, 0xCF}},
		{name: "explicit", cmd: Command{Target: "SAT", Packet: "NOOP", Hex: "0x00FF"}, wantTarget: "SAT", wantName: "NOOP", wantData: []byte{0x00, 0xFF}},
		{name: "empty", cmd: Command{}, wantErr: true},
		{name: "bad hex", cmd: Command{Hex: "zz"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkt, err := tt.cmd.ToPacket("INST")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTarget, pkt.Target)
			assert.Equal(t, tt.wantName, pkt.Name)
			assert.Equal(t, tt.wantData, pkt.Bytes())
		})
	}
}

func TestCommandHandler(t *testing.T) {
	var written []*protocol.Packet
	write := func(ctx context.Context, pkt *protocol.Packet) error {
		written = append(written, pkt)
		return nil
	}

	h := commandHandler(context.Background(), "INST", write)
	h(&nats.Msg{Subject: "groundlink.cmd.INST_INT", Data: []byte(`{"packet":"NOOP","hex":"1acf01"}`)})
	h(&nats.Msg{Subject: "groundlink.cmd.INST_INT", Data: []byte(`not json`)})

	require.Len(t, written, 1)
	assert.Equal(t, "NOOP", written[0].Name)
	assert.Equal(t, []byte{0x1A, 0xCF, 0x01}, written[0].Bytes())
}

type fakeSubscriber struct {
	subject string
	cb      nats.MsgHandler
}

func (f *fakeSubscriber) Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error) {
	f.subject = subj
	f.cb = cb
	return &nats.Subscription{Subject: subj}, nil
}

func TestSubscribeCommands(t *testing.T) {
	sub := &fakeSubscriber{}
	var got []byte
	_, err := SubscribeCommands(context.Background(), sub, "", "INST_INT", "INST", func(ctx context.Context, pkt *protocol.Packet) error {
		got = pkt.Bytes()
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "groundlink.cmd.INST_INT", sub.subject)

	sub.cb(&nats.Msg{Data: []byte(`{"hex":"abcd"}`)})
	assert.Equal(t, []byte{0xAB, 0xCD}, got)
}

type fakeRedis struct {
	store  map[string]string
	closed bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{store: map[string]string{}}
}

func (f *fakeRedis) MSet(ctx context.Context, values ...interface{}) *redis.StatusCmd {
	for i := 0; i+1 < len(values); i += 2 {
		f.store[values[i].(string)] = values[i+1].(string)
	}
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeRedis) Incr(ctx context.Context, key string) *redis.IntCmd {
	n, _ := strconv.ParseInt(f.store[key], 10, 64)
	n++
	f.store[key] = strconv.FormatInt(n, 10)
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(n)
	return cmd
}

func (f *fakeRedis) MGet(ctx context.Context, keys ...string) *redis.SliceCmd {
	vals := make([]interface{}, len(keys))
	for i, k := range keys {
		if v, ok := f.store[k]; ok {
			vals[i] = v
		}
	}
	cmd := redis.NewSliceCmd(ctx)
	cmd.SetVal(vals)
	return cmd
}

func (f *fakeRedis) Close() error {
	f.closed = true
	return nil
}

func TestCVT(t *testing.T) {
	fr := newFakeRedis()
	cvt := NewCVT(fr)
	ctx := context.Background()

	_, err := cvt.Latest(ctx, "INST", "HEALTH_STATUS")
	assert.ErrorIs(t, err, ErrNoValue)

	rec := NewRecord("INST_INT", DirectionRead, testPacket())
	require.NoError(t, cvt.Publish(ctx, rec))
	require.NoError(t, cvt.Publish(ctx, rec))
	require.NoError(t, cvt.Publish(ctx, NewRecord("INST_INT", DirectionWrite, testPacket())))

	assert.Equal(t, "1acf4f4b", fr.store["INST__HEALTH_STATUS__BUFFER"])
	assert.Equal(t, "1772366400.500000", fr.store["INST__HEALTH_STATUS__RECEIVED_TIMESECONDS"])
	assert.Equal(t, "2", fr.store["INST__HEALTH_STATUS__RECEIVED_COUNT"])

	latest, err := cvt.Latest(ctx, "INST", "HEALTH_STATUS")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x1A, 0xCF, 'O', 'K'}, latest.Data)
	assert.Equal(t, int64(2), latest.Count)
	assert.True(t, latest.ReceivedAt.Equal(rec.Timestamp))

	require.NoError(t, cvt.Close())
	assert.True(t, fr.closed)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "INST__HEALTH_STATUS__BUFFER", Key("INST", "HEALTH_STATUS", ItemBuffer))
	assert.Equal(t, "UNKNOWN__UNKNOWN__RECEIVED_COUNT", Key("", "", ItemCount))
}

func TestCapture(t *testing.T) {
	dir := t.TempDir()
	c, err := NewCapture(dir)
	require.NoError(t, err)

	require.NoError(t, c.Publish(context.Background(), NewRecord("INST_INT", DirectionRead, testPacket())))
	require.NoError(t, c.Publish(context.Background(), NewRecord("INST_INT", DirectionWrite, protocol.NewPacket("INST", "CMD", []byte{1}))))
	assert.Equal(t, 2, c.Count())
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	assert.ErrorIs(t, c.Publish(context.Background(), Record{}), os.ErrClosed)

	f, err := os.Open(c.Path())
	require.NoError(t, err)
	defer f.Close()

	var lines []Record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		lines = append(lines, rec)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "HEALTH_STATUS", lines[0].Packet)
	assert.Equal(t, DirectionWrite, lines[1].Direction)
}
