package sim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diffbot/core"
)

// startBus runs an engine on a simulated bus with its interrupt delivered.
func startBus(t *testing.T, addrs ...core.I2CAddress) (*SonarBus, *core.I2CBus) {
	bus := NewSonarBus(addrs...)
	engine := core.NewI2CBus(bus, 0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		bus.Run(ctx, engine.HandleInterrupt)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return bus, engine
}

func await(t *testing.T, cell *core.RxCell) (byte, error) {
	t.Helper()
	var (
		v    byte
		err  error
		done bool
	)
	require.Eventually(t, func() bool {
		v, done, err = cell.Load()
		return done
	}, time.Second, time.Millisecond)
	return v, err
}

func TestSonarBusRevision(t *testing.T) {
	_, engine := startBus(t, core.SRF10LeftAddr)

	var cell core.RxCell
	require.NoError(t, engine.Read(core.SRF10LeftAddr, 0, &cell))
	v, err := await(t, &cell)
	require.NoError(t, err)
	assert.Equal(t, byte(srf10Revision), v)
}

func TestSonarBusNacksMissingDevice(t *testing.T) {
	_, engine := startBus(t, core.SRF10LeftAddr)

	var cell core.RxCell
	require.NoError(t, engine.Read(0x42, 0, &cell))
	_, err := await(t, &cell)
	assert.ErrorIs(t, err, core.ErrBusNack)
	assert.Eventually(t, engine.Idle, time.Second, time.Millisecond)
	assert.Equal(t, uint32(1), engine.Stats().Aborted)
}

func TestSonarBusRangeWindow(t *testing.T) {
	bus, engine := startBus(t, core.SRF10LeftAddr)
	bus.SetDistance(core.SRF10LeftAddr, 40)

	ping := func(rangeReg byte) byte {
		require.NoError(t, engine.Write(core.SRF10LeftAddr, 2, rangeReg))
		require.NoError(t, engine.Write(core.SRF10LeftAddr, 0, srf10Ping))
		var cell core.RxCell
		require.NoError(t, engine.Read(core.SRF10LeftAddr, 3, &cell))
		v, err := await(t, &cell)
		require.NoError(t, err)
		return v
	}

	assert.Equal(t, byte(40), ping(10), "40 cm inside a 47 cm window")
	assert.Equal(t, byte(0), ping(5), "40 cm beyond a 25 cm window")
	assert.Equal(t, 2, bus.Pings(core.SRF10LeftAddr))
	assert.Equal(t, byte(5), bus.Sensor(core.SRF10LeftAddr).Range)
}

func TestSonarBusWithRanger(t *testing.T) {
	bus, engine := startBus(t, core.SRF10LeftAddr, core.SRF10RightAddr)
	bus.SetDistance(core.SRF10LeftAddr, 30)
	bus.SetDistance(core.SRF10RightAddr, 200)

	cfg := core.DefaultRangerConfig()
	cfg.Cadence = 1
	cfg.ReadTimeout = time.Second
	ranger := core.NewRanger(engine, nil, cfg)
	ranger.Idle = idle
	require.NoError(t, ranger.Init())

	var obs core.Obstacles
	for i := 0; i < 3; i++ {
		var err error
		obs, err = ranger.Tick(0)
		require.NoError(t, err)
	}
	left, right := ranger.Distances()
	assert.Equal(t, uint16(30), left)
	assert.Equal(t, uint16(core.NoEcho), right, "200 cm is outside the slow-speed window")
	assert.Equal(t, core.Obstacles{Left: true}, obs)

	assert.Equal(t, byte(10), bus.Sensor(core.SRF10LeftAddr).Gain)
	assert.Equal(t, byte(10), bus.Sensor(core.SRF10RightAddr).Gain)
	assert.Equal(t, 1, bus.Pings(core.SRF10LeftAddr))
	assert.Equal(t, 2, bus.Pings(core.SRF10RightAddr))
}

func TestSonarBusDetachedSensor(t *testing.T) {
	bus, engine := startBus(t, core.SRF10LeftAddr, core.SRF10RightAddr)
	bus.SetPresent(core.SRF10LeftAddr, false)

	cfg := core.DefaultRangerConfig()
	cfg.Cadence = 1
	cfg.ReadTimeout = time.Second
	ranger := core.NewRanger(engine, nil, cfg)
	ranger.Idle = idle

	// Fire 1 reads left, fire 2 reads right, fire 3 reads left again.
	_, err := ranger.Tick(0)
	assert.Error(t, err)
	_, err = ranger.Tick(0)
	assert.NoError(t, err)
	_, err = ranger.Tick(0)
	assert.Error(t, err)
	assert.False(t, ranger.Unrecovered())
}
