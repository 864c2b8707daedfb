// Command echoclient connects to an echoserver instance, sends each line
// read from stdin, and prints whatever comes back.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/walkon/reactor"
	"github.com/walkon/reactor/internal/logging"
)

func messageCallback(_ *reactor.TCPConnectionHandle, buf *reactor.Buffer, _ time.Time) {
	fmt.Printf("server: %s\n", buf.RetrieveAllString())
}

func main() {
	client, err := reactor.NewTCPClient("127.0.0.1:8888", reactor.DefaultConnectionCallback, messageCallback)
	if err != nil {
		logging.L().Fatal("echoclient: connect failed", zap.Error(err))
	}
	client.Listen()

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "exit") {
			break
		}
		client.Write([]byte(line))
		fmt.Print("> ")
	}

	client.Shutdown()
	_ = client.Wait()
}
