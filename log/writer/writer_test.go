package writer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hatlonely/ormx/ref"
	. "github.com/smartystreets/goconvey/convey"
)

func TestNewWriterWithOptions(t *testing.T) {
	Convey("通过 TypeOptions 创建输出器", t, func() {
		Convey("默认命名空间下创建 ConsoleWriter", func() {
			w, err := NewWriterWithOptions(&ref.TypeOptions{Type: "ConsoleWriter"})
			So(err, ShouldBeNil)
			So(w, ShouldHaveSameTypeAs, &ConsoleWriter{})
			So(w.Close(), ShouldBeNil)
		})

		Convey("未注册的类型返回错误", func() {
			_, err := NewWriterWithOptions(&ref.TypeOptions{Type: "Unknown"})
			So(err, ShouldNotBeNil)
		})

		Convey("nil options 返回错误", func() {
			_, err := NewWriterWithOptions(nil)
			So(err, ShouldNotBeNil)
		})
	})
}

func TestConsoleWriter(t *testing.T) {
	Convey("控制台输出器", t, func() {
		w, err := NewConsoleWriterWithOptions(&ConsoleWriterOptions{Target: "stderr"})
		So(err, ShouldBeNil)
		So(w.writer, ShouldEqual, os.Stderr)

		_, err = NewConsoleWriterWithOptions(&ConsoleWriterOptions{Target: "printer"})
		So(err, ShouldNotBeNil)
	})
}

func TestFileWriter(t *testing.T) {
	Convey("文件输出器", t, func() {
		path := filepath.Join(t.TempDir(), "a", "b", "out.log")

		Convey("自动创建目录并追加写入", func() {
			w, err := NewFileWriterWithOptions(&FileWriterOptions{Path: path})
			So(err, ShouldBeNil)
			_, err = w.Write([]byte("hello\n"))
			So(err, ShouldBeNil)
			So(w.Close(), ShouldBeNil)

			w, err = NewFileWriterWithOptions(&FileWriterOptions{Path: path})
			So(err, ShouldBeNil)
			_, err = w.Write([]byte("world\n"))
			So(err, ShouldBeNil)
			So(w.Close(), ShouldBeNil)

			data, err := os.ReadFile(path)
			So(err, ShouldBeNil)
			So(string(data), ShouldEqual, "hello\nworld\n")
		})

		Convey("关闭后写入返回错误", func() {
			w, err := NewFileWriterWithOptions(&FileWriterOptions{Path: path})
			So(err, ShouldBeNil)
			So(w.Close(), ShouldBeNil)
			So(w.Close(), ShouldBeNil)
			_, err = w.Write([]byte("x"))
			So(err, ShouldNotBeNil)
		})

		Convey("路径为空返回错误", func() {
			_, err := NewFileWriterWithOptions(&FileWriterOptions{})
			So(err, ShouldNotBeNil)
		})
	})
}

func TestMultiWriter(t *testing.T) {
	Convey("多路输出器", t, func() {
		dir := t.TempDir()
		p1 := filepath.Join(dir, "1.log")
		p2 := filepath.Join(dir, "2.log")

		w, err := NewMultiWriterWithOptions(&MultiWriterOptions{
			Writers: []*ref.TypeOptions{
				{Type: "FileWriter", Options: &FileWriterOptions{Path: p1}},
				{Type: "FileWriter", Options: &FileWriterOptions{Path: p2}},
			},
		})
		So(err, ShouldBeNil)

		n, err := w.Write([]byte("line\n"))
		So(err, ShouldBeNil)
		So(n, ShouldEqual, 5)
		So(w.Close(), ShouldBeNil)

		for _, p := range []string{p1, p2} {
			data, err := os.ReadFile(p)
			So(err, ShouldBeNil)
			So(string(data), ShouldEqual, "line\n")
		}

		Convey("任一输出器创建失败时整体失败", func() {
			_, err := NewMultiWriterWithOptions(&MultiWriterOptions{
				Writers: []*ref.TypeOptions{
					{Type: "FileWriter", Options: &FileWriterOptions{Path: filepath.Join(dir, "3.log")}},
					{Type: "FileWriter", Options: &FileWriterOptions{}},
				},
			})
			So(err, ShouldNotBeNil)
		})

		Convey("空列表返回错误", func() {
			_, err := NewMultiWriterWithOptions(&MultiWriterOptions{})
			So(err, ShouldNotBeNil)
		})
	})
}
