package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithoutPath(t *testing.T) {
	t.Setenv("NETCODE_CONFIG", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Ошибка загрузки без пути: %v", err)
	}
	if cfg != nil {
		t.Errorf("Без пути и ENV ожидается nil конфиг, получено %+v", cfg)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	yml := `
server:
  udp_port: 9100
  broadcast_interval_ms: 33
game:
  board_width: 2048
prediction:
  max_sequence_gap: 8
`
	path := filepath.Join(t.TempDir(), "netcode.yml")
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatalf("Не удалось записать временный конфиг: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Ошибка загрузки конфига: %v", err)
	}

	t.Run("Переопределённые значения", func(t *testing.T) {
		if cfg.Server.GetUDPPort() != 9100 {
			t.Errorf("UDP порт: ожидался 9100, получен %d", cfg.Server.GetUDPPort())
		}
		if cfg.Server.BroadcastInterval() != 33*time.Millisecond {
			t.Errorf("Интервал рассылки: ожидался 33ms, получен %v", cfg.Server.BroadcastInterval())
		}
		if cfg.Game.BoardWidth != 2048 {
			t.Errorf("Ширина поля: ожидалась 2048, получена %d", cfg.Game.BoardWidth)
		}
		if cfg.Prediction.MaxSequenceGap != 8 {
			t.Errorf("Порог расхождения: ожидался 8, получен %d", cfg.Prediction.MaxSequenceGap)
		}
	})

	t.Run("Нетронутые значения остаются дефолтными", func(t *testing.T) {
		if cfg.Game.BoardHeight != 768 {
			t.Errorf("Высота поля: ожидалась 768, получена %d", cfg.Game.BoardHeight)
		}
		if cfg.Game.MoveSpeed != 5 {
			t.Errorf("Скорость: ожидалась 5, получена %d", cfg.Game.MoveSpeed)
		}
		if cfg.Server.ClientTimeout() != 10*time.Second {
			t.Errorf("Таймаут клиента: ожидался 10s, получен %v", cfg.Server.ClientTimeout())
		}
		if cfg.Storage.Backend != "memory" {
			t.Errorf("Бэкенд хранилища: ожидался memory, получен %s", cfg.Storage.Backend)
		}
	})
}

func TestLoadFromEnvPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "env.yml")
	if err := os.WriteFile(path, []byte("game:\n  player_size: 32\n"), 0o644); err != nil {
		t.Fatalf("Не удалось записать временный конфиг: %v", err)
	}
	t.Setenv("NETCODE_CONFIG", path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Ошибка загрузки из NETCODE_CONFIG: %v", err)
	}
	if cfg == nil {
		t.Fatal("Ожидался конфиг из NETCODE_CONFIG, получен nil")
	}
	if cfg.Game.PlayerSize != 32 {
		t.Errorf("Размер игрока: ожидался 32, получен %d", cfg.Game.PlayerSize)
	}
}

func TestPortEnvFallback(t *testing.T) {
	t.Setenv("NETCODE_UDP_PORT", "9200")

	s := ServerConfig{} // порт не задан в конфиге
	if s.GetUDPPort() != 9200 {
		t.Errorf("UDP порт из ENV: ожидался 9200, получен %d", s.GetUDPPort())
	}

	s.UDPPort = 9300 // конфиг приоритетнее ENV
	if s.GetUDPPort() != 9300 {
		t.Errorf("UDP порт из конфига: ожидался 9300, получен %d", s.GetUDPPort())
	}
}

func TestDurationDefaults(t *testing.T) {
	var p PredictionConfig
	if p.MaxReconcileInterval() != 500*time.Millisecond {
		t.Errorf("Интервал сверки: ожидался 500ms, получен %v", p.MaxReconcileInterval())
	}

	var st StorageConfig
	if st.FlushEvery() != 5*time.Second {
		t.Errorf("Период выгрузки: ожидался 5s, получен %v", st.FlushEvery())
	}
}
