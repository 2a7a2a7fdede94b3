package cfg

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

type serverOptions struct {
	Host    string        `cfg:"host" def:"localhost"`
	Port    int           `cfg:"port" def:"8080" validate:"min=1,max=65535"`
	Timeout time.Duration `cfg:"timeout" def:"3s"`
	Tags    []string      `cfg:"tags"`
	Debug   bool          `cfg:"debug"`
}

type appOptions struct {
	Name    string            `cfg:"name" validate:"required"`
	Server  serverOptions     `cfg:"server"`
	Backup  *serverOptions    `cfg:"backup"`
	Labels  map[string]string `cfg:"labels"`
	Plugin  any               `cfg:"plugin"`
	Servers []*serverOptions  `cfg:"servers"`
}

func writeFile(dir, name, content string) string {
	filename := filepath.Join(dir, name)
	So(os.WriteFile(filename, []byte(content), 0644), ShouldBeNil)
	return filename
}

func TestLoad(t *testing.T) {
	Convey("加载不同格式的配置文件", t, func() {
		dir := t.TempDir()

		Convey("yaml", func() {
			filename := writeFile(dir, "app.yaml", `
name: demo
server:
  host: 127.0.0.1
  timeout: 500ms
  tags: [a, b]
backup:
  port: 9090
labels:
  env: test
plugin:
  type: MapStore
servers:
  - host: s1
  - host: s2
    port: 81
`)
			var options appOptions
			So(LoadInto(filename, &options), ShouldBeNil)
			So(options.Name, ShouldEqual, "demo")
			So(options.Server.Host, ShouldEqual, "127.0.0.1")
			So(options.Server.Port, ShouldEqual, 8080)
			So(options.Server.Timeout, ShouldEqual, 500*time.Millisecond)
			So(options.Server.Tags, ShouldResemble, []string{"a", "b"})
			So(options.Backup.Host, ShouldEqual, "localhost")
			So(options.Backup.Port, ShouldEqual, 9090)
			So(options.Labels, ShouldResemble, map[string]string{"env": "test"})
			So(options.Servers, ShouldHaveLength, 2)
			So(options.Servers[0].Port, ShouldEqual, 8080)
			So(options.Servers[1].Port, ShouldEqual, 81)

			node, ok := options.Plugin.(*Node)
			So(ok, ShouldBeTrue)
			So(node.Sub("type").Data(), ShouldEqual, "MapStore")
		})

		Convey("json", func() {
			filename := writeFile(dir, "app.json", `{"name": "demo", "server": {"port": 9000, "debug": true}}`)
			node, err := Load(filename)
			So(err, ShouldBeNil)
			So(node.Sub("server.port").Data(), ShouldEqual, int64(9000))

			var options appOptions
			So(node.ConvertTo(&options), ShouldBeNil)
			So(options.Server.Port, ShouldEqual, 9000)
			So(options.Server.Debug, ShouldBeTrue)
		})

		Convey("toml", func() {
			filename := writeFile(dir, "app.toml", "name = \"demo\"\n[server]\nhost = \"h\"\nport = 7000\n")
			var options appOptions
			So(LoadInto(filename, &options), ShouldBeNil)
			So(options.Server.Host, ShouldEqual, "h")
			So(options.Server.Port, ShouldEqual, 7000)
		})

		Convey("ini", func() {
			filename := writeFile(dir, "app.ini", "name = demo\n[server]\nport = 6000\ndebug = true\ntags = x,y\n")
			var options appOptions
			So(LoadInto(filename, &options), ShouldBeNil)
			So(options.Server.Port, ShouldEqual, 6000)
			So(options.Server.Debug, ShouldBeTrue)
			So(options.Server.Tags, ShouldResemble, []string{"x", "y"})
		})

		Convey("校验失败", func() {
			filename := writeFile(dir, "bad.yaml", "server:\n  port: 70000\n")
			var options appOptions
			err := LoadInto(filename, &options)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "validation failed")
		})

		Convey("不支持的扩展名", func() {
			_, err := Load(filepath.Join(dir, "app.xml"))
			So(err, ShouldNotBeNil)
		})

		Convey("文件不存在", func() {
			_, err := Load(filepath.Join(dir, "missing.yaml"))
			So(err, ShouldNotBeNil)
		})
	})
}

func TestSub(t *testing.T) {
	Convey("按路径获取子节点", t, func() {
		node := NewNode(map[string]any{
			"a": map[string]any{
				"b": []any{map[string]any{"c": 1}, map[string]any{"c": 2}},
			},
		})
		So(node.Sub("a.b[1].c").Data(), ShouldEqual, 2)
		So(node.Sub("a.b[5].c").Data(), ShouldBeNil)
		So(node.Sub("x.y").Data(), ShouldBeNil)
		So(node.Sub("").Data(), ShouldResemble, node.Data())
	})
}

func TestSetDefaults(t *testing.T) {
	Convey("def 标签默认值", t, func() {
		var options serverOptions
		So(SetDefaults(&options), ShouldBeNil)
		So(options.Host, ShouldEqual, "localhost")
		So(options.Port, ShouldEqual, 8080)
		So(options.Timeout, ShouldEqual, 3*time.Second)

		Convey("非零值不覆盖", func() {
			options := serverOptions{Port: 1}
			So(SetDefaults(&options), ShouldBeNil)
			So(options.Port, ShouldEqual, 1)
		})

		Convey("非指针报错", func() {
			So(SetDefaults(options), ShouldNotBeNil)
		})
	})

	Convey("配置中显式给出的零值不被默认值覆盖", t, func() {
		type switchOptions struct {
			Enable bool `cfg:"enable" def:"true"`
			Retry  int  `cfg:"retry" def:"3"`
		}
		type wrapper struct {
			Inner *switchOptions  `cfg:"inner"`
			List  []switchOptions `cfg:"list"`
		}

		var options switchOptions
		So(NewNode(map[string]any{"enable": false}).ConvertTo(&options), ShouldBeNil)
		So(options.Enable, ShouldBeFalse)
		So(options.Retry, ShouldEqual, 3)

		var w wrapper
		So(NewNode(map[string]any{
			"inner": map[string]any{"retry": 0},
			"list":  []any{map[string]any{"enable": false}, map[string]any{}},
		}).ConvertTo(&w), ShouldBeNil)
		So(w.Inner.Enable, ShouldBeTrue)
		So(w.Inner.Retry, ShouldEqual, 0)
		So(w.List[0].Enable, ShouldBeFalse)
		So(w.List[1].Enable, ShouldBeTrue)
		So(w.List[1].Retry, ShouldEqual, 3)
	})
}
